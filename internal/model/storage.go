package model

import (
	"fmt"
	"strings"
)

const (
	rawObjectName   = "prices.json"
	formattedFolder = "formatted_prices"
)

// StorageLocator identifies where a symbol's staged artifacts live. It is derived, never stored.
type StorageLocator struct {
	Bucket string
	Symbol Symbol
}

// String renders the locator as "<bucket>/<symbol>", the form handed to the formatter job.
func (l StorageLocator) String() string {
	return l.Bucket + "/" + string(l.Symbol)
}

// RawKey is the object key of the raw price record.
func (l StorageLocator) RawKey() string {
	return string(l.Symbol) + "/" + rawObjectName
}

// FormattedPrefix is the key prefix the formatter writes under.
func (l StorageLocator) FormattedPrefix() string {
	return string(l.Symbol) + "/" + formattedFolder + "/"
}

// ParseLocator parses "<bucket>/<symbol>".
func ParseLocator(s string) (StorageLocator, error) {
	bucket, sym, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || bucket == "" {
		return StorageLocator{}, fmt.Errorf("malformed locator %q", s)
	}
	symbol, err := NormalizeSymbol(sym)
	if err != nil {
		return StorageLocator{}, fmt.Errorf("malformed locator %q: %w", s, err)
	}
	return StorageLocator{Bucket: bucket, Symbol: symbol}, nil
}

// FormattedFile points at one formatted CSV object.
type FormattedFile struct {
	Bucket string
	Key    string
}

func (f FormattedFile) String() string { return f.Bucket + "/" + f.Key }
