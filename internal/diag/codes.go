package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// source and IO
	GenParse       Code = 1001
	GenRead        Code = 1002
	GenWrite       Code = 1003
	GenPackageLoad Code = 1004

	// directives
	GenBadDirective   Code = 2001
	GenDuplicateType  Code = 2002
	GenUnsupportedGen Code = 2003

	// derivation
	GenNotPacked     Code = 3001
	GenNotCompatible Code = 3002
	GenFieldType     Code = 3003

	// embedded language
	LangUnsupported  Code = 4001
	LangUnknownName  Code = 4002
	LangBadType      Code = 4003
	LangArity        Code = 4004
	LangMissingValue Code = 4005
)

var codeDescription = map[Code]string{
	UnknownCode:       "Unknown error",
	GenParse:          "Source does not parse",
	GenRead:           "Cannot read source",
	GenWrite:          "Cannot write generated file",
	GenPackageLoad:    "Cannot load package",
	GenBadDirective:   "Malformed //jit:derive directive",
	GenDuplicateType:  "Type derived twice",
	GenUnsupportedGen: "Declaration cannot be derived",
	GenNotPacked:      "Struct is not packed",
	GenNotCompatible:  "Declaration is not JIT compatible",
	GenFieldType:      "Field type has no descriptor",
	LangUnsupported:   "Unsupported construct",
	LangUnknownName:   "Unknown name",
	LangBadType:       "Unknown type",
	LangArity:         "Wrong number of arguments",
	LangMissingValue:  "Expression has no value",
}

// ID returns the stable identifier of c, e.g. GEN3001.
func (c Code) ID() string {
	if c == UnknownCode {
		return "E0000"
	}
	return fmt.Sprintf("GEN%04d", int(c))
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
