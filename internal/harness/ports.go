package harness

import "net"

// randomAddr reserves an OS-assigned localhost port and releases it so the
// daemon can bind it. The window between release and re-bind is short
// enough for single-run use.
func randomAddr() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer l.Close()

	return l.Addr().String(), nil
}
