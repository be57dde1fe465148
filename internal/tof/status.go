package tof

// StatusClass is the coarse quality of a range status code.
type StatusClass string

const (
	ClassOK   StatusClass = "OK"
	ClassWeak StatusClass = "WEAK"
	ClassErr  StatusClass = "ERR"
)

// Classify maps a range status code: 0 is OK, 1 and 2 are WEAK, anything
// else is ERR.
func Classify(status uint8) StatusClass {
	switch status {
	case 0:
		return ClassOK
	case 1, 2:
		return ClassWeak
	default:
		return ClassErr
	}
}
