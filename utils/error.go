package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

var ErrorMissingEmpresaId = errors.New("empresa id is required")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
