//go:build !unix

package mutate

import "fmt"

func chownFromOperand(path string, owners any) error {
	return fmt.Errorf("mutate: _file_modify owners is unsupported on this platform")
}
