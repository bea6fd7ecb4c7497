// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package options

import "github.com/mongocore/driver/mongo/readpref"

// RunCmdOptions represents arguments that can be used to configure a RunCommand
// operation.
type RunCmdOptions struct {
	// The read preference to use for the operation. The default value is nil, which means
	// that the primary read preference will be used.
	ReadPreference *readpref.ReadPref
}

// RunCmdOptionsBuilder contains options to configure RunCommand operations. Each option
// can be set through setter functions.
type RunCmdOptionsBuilder struct {
	Opts []func(*RunCmdOptions) error
}

// RunCmd creates a new RunCmdOptionsBuilder instance.
func RunCmd() *RunCmdOptionsBuilder {
	return &RunCmdOptionsBuilder{}
}

// ArgsSetters returns a list of RunCmdOptions setter functions.
func (rc *RunCmdOptionsBuilder) ArgsSetters() []func(*RunCmdOptions) error {
	return rc.Opts
}

// SetReadPreference sets the value for the ReadPreference field.
func (rc *RunCmdOptionsBuilder) SetReadPreference(rp *readpref.ReadPref) *RunCmdOptionsBuilder {
	rc.Opts = append(rc.Opts, func(args *RunCmdOptions) error {
		args.ReadPreference = rp
		return nil
	})
	return rc
}
