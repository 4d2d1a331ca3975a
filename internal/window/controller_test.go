package window

import "testing"

func TestBrowserController_ClosedNeverFires(t *testing.T) {
	controller := NewBrowserController()

	select {
	case <-controller.Closed():
		t.Error("Closed() fired for an external browser controller")
	default:
	}
}

func TestBrowserController_CloseIsIdempotent(t *testing.T) {
	controller := NewBrowserController()

	if err := controller.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := controller.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
