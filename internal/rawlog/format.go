package rawlog

import "fmt"

func join(v []interface{}) string {
	return fmt.Sprint(v...)
}

func sprintf(format string, a ...interface{}) string {
	return fmt.Sprintf(format, a...)
}
