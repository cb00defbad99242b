package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")
var ErrorLaboratoryNotFound = errors.New("laboratory not found")
var ErrorInactiveLaboratory = errors.New("laboratory is inactive")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
