package collage

import (
	"context"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/youruser/collageapp/internal/errors"
	imagepkg "github.com/youruser/collageapp/internal/image"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSessionLifecycle(t *testing.T) {
	loader := &colourLoader{colours: map[string]color.NRGBA{"a": red, "b": blue}}
	s := NewSession(context.Background(), "s1", newComposer(loader))

	if got := s.Snapshot().State; got != Idle {
		t.Fatalf("new session state = %s", got)
	}
	if _, err := s.Start(); !errors.Is(err, errors.ErrCodeInvalidState) {
		t.Errorf("Start from idle: err = %v", err)
	}
	if err := s.ChooseTemplate([]string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}, 0, 0); !errors.Is(err, errors.ErrCodeNoTemplate) {
		t.Errorf("ChooseTemplate(10): err = %v", err)
	}
	if got := s.Snapshot().State; got != Idle {
		t.Errorf("failed ChooseTemplate changed state to %s", got)
	}

	if err := s.ChooseTemplate([]string{"a", "b"}, 200, 100); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Result(); !errors.Is(err, errors.ErrCodeInvalidState) {
		t.Errorf("Result before compose: err = %v", err)
	}
	if _, err := s.Start(); err != nil {
		t.Fatal(err)
	}

	snap, err := s.Wait(waitCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != Composed || snap.Count != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	res, err := s.Result()
	if err != nil {
		t.Fatal(err)
	}
	if b := res.Image.Bounds(); b.Dx() != 200 || b.Dy() != 100 {
		t.Errorf("bounds = %v", b)
	}

	// a composed session may be read any number of times
	if again, _ := s.Result(); again != res {
		t.Error("Result should be stable while composed")
	}
}

func TestSessionFailureAndRetry(t *testing.T) {
	loader := &colourLoader{colours: map[string]color.NRGBA{"a": red, "b": blue}}
	s := NewSession(context.Background(), "s1", newComposer(loader))

	if err := s.ChooseTemplate([]string{"a", "missing"}, 100, 100); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Start(); err != nil {
		t.Fatal(err)
	}
	snap, _ := s.Wait(waitCtx(t))
	if snap.State != Failed {
		t.Fatalf("state = %s, want failed", snap.State)
	}
	if snap.ErrorCode != string(errors.ErrCodeCompositionAborted) || !strings.Contains(snap.Error, "unreadable missing") {
		t.Errorf("snapshot error = %q (%s)", snap.Error, snap.ErrorCode)
	}
	if _, err := s.Result(); err == nil {
		t.Error("failed session must not expose a result")
	}

	gen, err := s.Retry([]string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	snap, _ = s.Wait(waitCtx(t))
	if snap.State != Composed || snap.Generation != gen || snap.Error != "" {
		t.Errorf("after retry: %+v", snap)
	}
}

func TestSessionDiscardsStaleGeneration(t *testing.T) {
	release := make(chan struct{})
	loader := imagepkg.LoaderFunc(func(ctx context.Context, loc string, w, h int) (image.Image, error) {
		if strings.HasPrefix(loc, "slow") {
			// ignores cancellation, like a decoder that cannot be interrupted
			<-release
		}
		return imaging.New(10, 10, red), nil
	})

	commits := make(chan [2]uint64, 4)
	s := NewSession(context.Background(), "s1", newComposer(loader))
	s.onCommit = func(gen uint64, applied bool) {
		var a uint64
		if applied {
			a = 1
		}
		commits <- [2]uint64{gen, a}
	}

	if err := s.ChooseTemplate([]string{"slow-0", "slow-1"}, 100, 100); err != nil {
		t.Fatal(err)
	}
	oldGen, err := s.Start()
	if err != nil {
		t.Fatal(err)
	}

	// the locator list changes while the first load is in flight
	if err := s.ChooseTemplate([]string{"fast-0", "fast-1", "fast-2"}, 100, 100); err != nil {
		t.Fatal(err)
	}
	newGen, err := s.Start()
	if err != nil {
		t.Fatal(err)
	}
	if newGen <= oldGen {
		t.Fatalf("generation did not advance: %d -> %d", oldGen, newGen)
	}

	snap, err := s.Wait(waitCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != Composed || snap.Count != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if c := <-commits; c != [2]uint64{newGen, 1} {
		t.Fatalf("first commit = %v, want new generation applied", c)
	}

	close(release)
	select {
	case c := <-commits:
		if c != [2]uint64{oldGen, 0} {
			t.Errorf("late commit = %v, want stale generation discarded", c)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stale generation never finished")
	}

	after := s.Snapshot()
	if after.State != Composed || after.Count != 3 || after.Generation != newGen {
		t.Errorf("stale result changed the session: %+v", after)
	}
	res, err := s.Result()
	if err != nil || res.Template.Count != 3 {
		t.Errorf("Result() = %v, %v", res, err)
	}
}

func TestSessionClose(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	loader := imagepkg.LoaderFunc(func(ctx context.Context, loc string, w, h int) (image.Image, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, ctx.Err()
	})

	s := NewSession(context.Background(), "s1", newComposer(loader))
	if err := s.ChooseTemplate([]string{"a", "b"}, 50, 50); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Start(); err != nil {
		t.Fatal(err)
	}
	s.Close()

	snap, err := s.Wait(waitCtx(t))
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != Failed {
		t.Errorf("closed session state = %s, want failed", snap.State)
	}
}

func TestStore(t *testing.T) {
	loader := &colourLoader{colours: map[string]color.NRGBA{"a": red, "b": blue}}
	st := NewStore(context.Background(), newComposer(loader))

	if _, err := st.Create([]string{"a"}, 0, 0); !errors.Is(err, errors.ErrCodeNoTemplate) {
		t.Errorf("Create(1): err = %v", err)
	}
	if st.Len() != 0 {
		t.Errorf("rejected session was stored")
	}

	s, err := st.Create([]string{"a", "b"}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if s.Snapshot().State != TemplateChosen {
		t.Errorf("new session state = %s", s.Snapshot().State)
	}
	got, err := st.Get(s.ID)
	if err != nil || got != s {
		t.Fatalf("Get(%s) = %v, %v", s.ID, got, err)
	}
	if err := st.Delete(s.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Get(s.ID); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Get after delete: err = %v", err)
	}
	if err := st.Delete(s.ID); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("double delete: err = %v", err)
	}
}

func TestChooseTemplateRejectsBadSize(t *testing.T) {
	loader := &colourLoader{colours: map[string]color.NRGBA{"a": red, "b": blue}}
	s := NewSession(context.Background(), "s1", newComposer(loader))

	for _, size := range [][2]int{{-1, 100}, {100, -3}, {imagepkg.DefaultMaxEdge + 1, 100}} {
		if err := s.ChooseTemplate([]string{"a", "b"}, size[0], size[1]); !errors.Is(err, errors.ErrCodeInvalidInput) {
			t.Errorf("ChooseTemplate(%v): err = %v, want INVALID_INPUT", size, err)
		}
	}
	if got := s.Snapshot().State; got != Idle {
		t.Errorf("state after rejected sizes = %s, want idle", got)
	}
}

func TestStoreRejectsBadSize(t *testing.T) {
	loader := &colourLoader{colours: map[string]color.NRGBA{"a": red, "b": blue}}
	st := NewStore(context.Background(), newComposer(loader))

	if _, err := st.Create([]string{"a", "b"}, 60000, 60000); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("Create(60000x60000): err = %v", err)
	}
	if _, err := st.Create([]string{"a", "b"}, -3, 10); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("Create(-3x10): err = %v", err)
	}
	if st.Len() != 0 {
		t.Errorf("rejected sessions were stored")
	}
}

func TestStoreExpiresIdleSessions(t *testing.T) {
	loader := &colourLoader{colours: map[string]color.NRGBA{"a": red, "b": blue}}
	st := NewStore(context.Background(), newComposer(loader))
	st.TTL = time.Minute
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	st.now = func() time.Time { return now }

	idle, err := st.Create([]string{"a", "b"}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	busy, err := st.Create([]string{"a", "b"}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	gone, err := st.Create([]string{"a", "b"}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(40 * time.Second)
	if _, err := st.Get(busy.ID); err != nil {
		t.Fatal(err)
	}
	if n := st.Prune(); n != 0 {
		t.Errorf("pruned %d sessions before the ttl", n)
	}

	now = now.Add(30 * time.Second)
	if _, err := st.Get(gone.ID); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Get(expired): err = %v, want NOT_FOUND", err)
	}
	if n := st.Prune(); n != 1 {
		t.Errorf("Prune = %d, want 1", n)
	}
	if _, err := st.Get(idle.ID); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("pruned session still found: %v", err)
	}
	if got, err := st.Get(busy.ID); err != nil || got != busy {
		t.Errorf("recently used session lost: %v", err)
	}
	if st.Len() != 1 {
		t.Errorf("Len = %d, want 1", st.Len())
	}

	st.TTL = 0
	now = now.Add(24 * time.Hour)
	if n := st.Prune(); n != 0 {
		t.Errorf("zero ttl pruned %d sessions", n)
	}
}
