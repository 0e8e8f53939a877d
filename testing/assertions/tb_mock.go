package assertions

import "fmt"

// TBMock exposes enough testing.TB methods for assertions.
type TBMock struct {
	ErrorfMsg string
	FatalfMsg string
}

// Errorf writes testing logs to ErrorfMsg.
func (tb *TBMock) Errorf(s string, args ...interface{}) {
	tb.ErrorfMsg = fmt.Sprintf(s, args...)
}

// Fatalf writes testing logs to FatalfMsg.
func (tb *TBMock) Fatalf(s string, args ...interface{}) {
	tb.FatalfMsg = fmt.Sprintf(s, args...)
}
