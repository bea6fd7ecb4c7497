// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package options

// DistinctOptions represents arguments that can be used to configure a Distinct
// operation.
type DistinctOptions struct {
	// Specifies a collation to use for string comparisons during the operation.
	Collation *Collation

	// A string or document that will be included in server logs, profiling logs, and
	// currentOp queries to help trace the operation.
	Comment interface{}
}

// DistinctOptionsBuilder contains options to configure distinct operations. Each option
// can be set through setter functions.
type DistinctOptionsBuilder struct {
	Opts []func(*DistinctOptions) error
}

// Distinct creates a new DistinctOptionsBuilder instance.
func Distinct() *DistinctOptionsBuilder {
	return &DistinctOptionsBuilder{}
}

// ArgsSetters returns a list of DistinctOptions setter functions.
func (d *DistinctOptionsBuilder) ArgsSetters() []func(*DistinctOptions) error {
	return d.Opts
}

// SetCollation sets the value for the Collation field.
func (d *DistinctOptionsBuilder) SetCollation(c *Collation) *DistinctOptionsBuilder {
	d.Opts = append(d.Opts, func(args *DistinctOptions) error {
		args.Collation = c
		return nil
	})
	return d
}

// SetComment sets the value for the Comment field.
func (d *DistinctOptionsBuilder) SetComment(comment interface{}) *DistinctOptionsBuilder {
	d.Opts = append(d.Opts, func(args *DistinctOptions) error {
		args.Comment = comment
		return nil
	})
	return d
}
