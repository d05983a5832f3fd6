// Copyright 2026 The Lectern Authors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"
)

// nonNegativeInt is a flag value for count knobs like --jobs,
// where zero selects a default and negative values are nonsense.
type nonNegativeInt int

var _ pflag.Value = (*nonNegativeInt)(nil)

func (f *nonNegativeInt) String() string {
	return strconv.Itoa(int(*f))
}

func (f *nonNegativeInt) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	*f = nonNegativeInt(n)
	return nil
}

func (f *nonNegativeInt) Type() string {
	return "int"
}
