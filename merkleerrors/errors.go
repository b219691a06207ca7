package merkleerrors

import (
	"errors"
	"strings"
)

// Tree (M) Errors
var (
	ErrCapacityExceeded = errors.New("M1|CapacityExceeded: Merkle tree at max capacity.")
	ErrIndexOutOfRange  = errors.New("M2|IndexOutOfRange: Leaf index is not below the number of inserted leaves.")
	ErrInvalidDepth     = errors.New("M3|InvalidDepth: Tree depth must be between 1 and 63.")
	ErrNilHasher        = errors.New("M4|NilHasher: A hashing capability is required.")
	ErrInvalidProof     = errors.New("M5|InvalidProof: Merkle proof is malformed or does not match the tree.")
)

// Configuration (C) Errors
var (
	ErrUnknownHasher = errors.New("C1|UnknownHasher: No hasher registered under this name.")
	ErrInvalidSpec   = errors.New("C2|InvalidSpec: Tree spec is incomplete or inconsistent.")
)

// Storage (S) Errors
var (
	ErrStoreMismatch      = errors.New("S1|StoreMismatch: Stored tree parameters differ from the requested spec.")
	ErrStoreCorrupt       = errors.New("S2|StoreCorrupt: Stored leaves are missing or undecodable.")
	ErrStoreUninitialized = errors.New("S3|StoreUninitialized: No tree has been initialised at this path.")
)

// Field (F) Errors
var (
	ErrNotInField = errors.New("F1|NotInField: Value is not a canonical element of the scalar field.")
)

// sentinel returns the code and the "Name: desc" tail of the last sentinel in
// err's message. Call sites wrap with "context: %v: %w", so the last sentinel
// is the one errors.Is matches on.
func sentinel(err error) (code, tail string, ok bool) {
	errStr := err.Error()
	i := strings.LastIndex(errStr, "|")
	if i < 0 {
		return "", "", false
	}
	head := errStr[:i]
	if j := strings.LastIndex(head, ": "); j >= 0 {
		head = head[j+2:]
	}
	return strings.TrimSpace(head), errStr[i+1:], true
}

// GetErrorName extracts the error name from the error message.
func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	_, tail, ok := sentinel(err)
	if !ok || !strings.Contains(tail, ":") {
		return err.Error()
	}
	return strings.TrimSpace(strings.SplitN(tail, ":", 2)[0])
}

// GetErrorCode extracts the error code from the error message.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	code, _, _ := sentinel(err)
	return code
}

// GetErrorCodeWithName returns the error code and name in the format "Code_ErrorName".
func GetErrorCodeWithName(err error) string {
	code := GetErrorCode(err)
	name := GetErrorName(err)
	if code == "" || name == "" {
		return ""
	}
	return code + "_" + name
}

// GetErrorDesc extracts the error description from the error message.
func GetErrorDesc(err error) string {
	if err == nil {
		return ""
	}
	_, tail, ok := sentinel(err)
	if !ok {
		tail = err.Error()
	}
	parts := strings.SplitN(tail, ":", 2)
	if len(parts) < 2 {
		return "DESC NOT SET"
	}
	return strings.TrimSpace(parts[1])
}
