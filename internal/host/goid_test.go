package host

import "testing"

func TestGoidDistinct(t *testing.T) {
	main := goid()
	if main == 0 {
		t.Fatal("goid() returned 0")
	}
	other := make(chan int64)
	go func() { other <- goid() }()
	if id := <-other; id == main || id == 0 {
		t.Fatalf("goroutine ids: main=%d other=%d", main, id)
	}
	if goid() != main {
		t.Fatal("goid() not stable on the same goroutine")
	}
}
