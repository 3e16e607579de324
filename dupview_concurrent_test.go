package dupview_test

import (
	"io"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/standardbeagle/dupview"
	"github.com/standardbeagle/dupview/internal/backend"
)

// TestConcurrentAccessDoesNotLeak exercises the shared façade from
// multiple goroutines at once: concurrent Entries()/Manifest()/Open()
// calls for the same snapshot must collapse onto a single load via
// singleflight and leave no goroutine behind.
func TestConcurrentAccessDoesNotLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	be := twoBlockFixture(t)
	repo, err := dupview.OpenWithConfig(be, smallBlockConfig())
	if err != nil {
		t.Fatalf("OpenWithConfig: %v", err)
	}

	full := repo.Snapshots()[0]

	const readers = 16
	var wg sync.WaitGroup
	errs := make(chan error, readers*3)

	wg.Add(readers)
	for i := 0; i < readers; i++ {
		go func() {
			defer wg.Done()

			if _, err := full.Entries(); err != nil {
				errs <- err
				return
			}
			if _, err := full.Manifest(); err != nil {
				errs <- err
				return
			}
			r, err := full.Open(backend.RawPath("file.txt"))
			if err != nil {
				errs <- err
				return
			}
			if _, err := io.ReadAll(&blockReader{r: r}); err != nil {
				errs <- err
				return
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent reader failed: %v", err)
	}
}
