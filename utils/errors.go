package utils

//panics if err is not nil. Used by drivers and tests where errors are fatal
func ThrowErr(err error) {
	if err != nil {
		panic(err)
	}
}
