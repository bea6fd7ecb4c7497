// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package options

import "time"

// FindOptions represents arguments that can be used to configure a Find operation.
type FindOptions struct {
	AllowDiskUse    *bool
	BatchSize       *int32
	Collation       *Collation
	Comment         interface{}
	Hint            interface{}
	Limit           *int64
	MaxTime         *time.Duration
	NoCursorTimeout *bool
	Projection      interface{}
	Skip            *int64
	Sort            interface{}
	Tailable        *bool
	AwaitData       *bool
}

// FindOptionsBuilder contains options to configure find operations. Each option can be
// set through setter functions.
type FindOptionsBuilder struct {
	Opts []func(*FindOptions) error
}

// Find creates a new FindOptionsBuilder instance.
func Find() *FindOptionsBuilder { return &FindOptionsBuilder{} }

// ArgsSetters returns a list of FindOptions setter functions.
func (f *FindOptionsBuilder) ArgsSetters() []func(*FindOptions) error { return f.Opts }

// SetBatchSize sets the value for the BatchSize field.
func (f *FindOptionsBuilder) SetBatchSize(n int32) *FindOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOptions) error { args.BatchSize = &n; return nil })
	return f
}

// SetLimit sets the value for the Limit field.
func (f *FindOptionsBuilder) SetLimit(n int64) *FindOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOptions) error { args.Limit = &n; return nil })
	return f
}

// SetSkip sets the value for the Skip field.
func (f *FindOptionsBuilder) SetSkip(n int64) *FindOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOptions) error { args.Skip = &n; return nil })
	return f
}

// SetSort sets the value for the Sort field.
func (f *FindOptionsBuilder) SetSort(sort interface{}) *FindOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOptions) error { args.Sort = sort; return nil })
	return f
}

// SetProjection sets the value for the Projection field.
func (f *FindOptionsBuilder) SetProjection(p interface{}) *FindOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOptions) error { args.Projection = p; return nil })
	return f
}

// SetCollation sets the value for the Collation field.
func (f *FindOptionsBuilder) SetCollation(c *Collation) *FindOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOptions) error { args.Collation = c; return nil })
	return f
}

// SetComment sets the value for the Comment field.
func (f *FindOptionsBuilder) SetComment(c interface{}) *FindOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOptions) error { args.Comment = c; return nil })
	return f
}

// SetHint sets the value for the Hint field.
func (f *FindOptionsBuilder) SetHint(h interface{}) *FindOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOptions) error { args.Hint = h; return nil })
	return f
}

// SetMaxTime sets the value for the MaxTime field.
func (f *FindOptionsBuilder) SetMaxTime(d time.Duration) *FindOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOptions) error { args.MaxTime = &d; return nil })
	return f
}

// SetNoCursorTimeout sets the value for the NoCursorTimeout field.
func (f *FindOptionsBuilder) SetNoCursorTimeout(b bool) *FindOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOptions) error { args.NoCursorTimeout = &b; return nil })
	return f
}

// SetTailable marks the cursor tailable (the CRUD spec Tailable CursorType).
func (f *FindOptionsBuilder) SetTailable(b bool) *FindOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOptions) error { args.Tailable = &b; return nil })
	return f
}

// SetAwaitData marks a tailable cursor as TailableAwait.
func (f *FindOptionsBuilder) SetAwaitData(b bool) *FindOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOptions) error { args.AwaitData = &b; return nil })
	return f
}

// SetAllowDiskUse allows the server to write temporary files during the find.
func (f *FindOptionsBuilder) SetAllowDiskUse(b bool) *FindOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOptions) error { args.AllowDiskUse = &b; return nil })
	return f
}

// FindOneOptions represents arguments for a FindOne operation.
type FindOneOptions struct {
	Collation  *Collation
	Comment    interface{}
	Hint       interface{}
	Projection interface{}
	Skip       *int64
	Sort       interface{}
}

// FindOneOptionsBuilder contains options to configure a FindOne operation.
type FindOneOptionsBuilder struct {
	Opts []func(*FindOneOptions) error
}

// FindOne creates a new FindOneOptionsBuilder instance.
func FindOne() *FindOneOptionsBuilder { return &FindOneOptionsBuilder{} }

// ArgsSetters returns a list of FindOneOptions setter functions.
func (f *FindOneOptionsBuilder) ArgsSetters() []func(*FindOneOptions) error { return f.Opts }

// SetSort sets the value for the Sort field.
func (f *FindOneOptionsBuilder) SetSort(sort interface{}) *FindOneOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOneOptions) error { args.Sort = sort; return nil })
	return f
}

// SetProjection sets the value for the Projection field.
func (f *FindOneOptionsBuilder) SetProjection(p interface{}) *FindOneOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOneOptions) error { args.Projection = p; return nil })
	return f
}

// SetSkip sets the value for the Skip field.
func (f *FindOneOptionsBuilder) SetSkip(n int64) *FindOneOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOneOptions) error { args.Skip = &n; return nil })
	return f
}

// SetCollation sets the value for the Collation field.
func (f *FindOneOptionsBuilder) SetCollation(c *Collation) *FindOneOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOneOptions) error { args.Collation = c; return nil })
	return f
}

// UpdateOptions represents arguments that can be used to configure Update/Replace
// operations.
type UpdateOptions struct {
	ArrayFilters             []interface{}
	BypassDocumentValidation *bool
	Collation                *Collation
	Comment                  interface{}
	Hint                     interface{}
	Upsert                   *bool
}

// UpdateOptionsBuilder contains options to configure update operations.
type UpdateOptionsBuilder struct {
	Opts []func(*UpdateOptions) error
}

// Update creates a new UpdateOptionsBuilder instance.
func Update() *UpdateOptionsBuilder { return &UpdateOptionsBuilder{} }

// ArgsSetters returns a list of UpdateOptions setter functions.
func (u *UpdateOptionsBuilder) ArgsSetters() []func(*UpdateOptions) error { return u.Opts }

// SetUpsert sets the value for the Upsert field.
func (u *UpdateOptionsBuilder) SetUpsert(b bool) *UpdateOptionsBuilder {
	u.Opts = append(u.Opts, func(args *UpdateOptions) error { args.Upsert = &b; return nil })
	return u
}

// SetArrayFilters sets the value for the ArrayFilters field.
func (u *UpdateOptionsBuilder) SetArrayFilters(filters []interface{}) *UpdateOptionsBuilder {
	u.Opts = append(u.Opts, func(args *UpdateOptions) error { args.ArrayFilters = filters; return nil })
	return u
}

// SetCollation sets the value for the Collation field.
func (u *UpdateOptionsBuilder) SetCollation(c *Collation) *UpdateOptionsBuilder {
	u.Opts = append(u.Opts, func(args *UpdateOptions) error { args.Collation = c; return nil })
	return u
}

// SetHint sets the value for the Hint field.
func (u *UpdateOptionsBuilder) SetHint(h interface{}) *UpdateOptionsBuilder {
	u.Opts = append(u.Opts, func(args *UpdateOptions) error { args.Hint = h; return nil })
	return u
}

// SetBypassDocumentValidation sets the value for the BypassDocumentValidation field.
func (u *UpdateOptionsBuilder) SetBypassDocumentValidation(b bool) *UpdateOptionsBuilder {
	u.Opts = append(u.Opts, func(args *UpdateOptions) error { args.BypassDocumentValidation = &b; return nil })
	return u
}

// Replace creates a new UpdateOptionsBuilder instance for a ReplaceOne call. It is the
// same builder Update returns; ReplaceOne does not send ArrayFilters.
func Replace() *UpdateOptionsBuilder { return &UpdateOptionsBuilder{} }

// DeleteOptions represents arguments that can be used to configure Delete operations.
type DeleteOptions struct {
	Collation *Collation
	Comment   interface{}
	Hint      interface{}
}

// DeleteOptionsBuilder contains options to configure delete operations.
type DeleteOptionsBuilder struct {
	Opts []func(*DeleteOptions) error
}

// Delete creates a new DeleteOptionsBuilder instance.
func Delete() *DeleteOptionsBuilder { return &DeleteOptionsBuilder{} }

// ArgsSetters returns a list of DeleteOptions setter functions.
func (d *DeleteOptionsBuilder) ArgsSetters() []func(*DeleteOptions) error { return d.Opts }

// SetCollation sets the value for the Collation field.
func (d *DeleteOptionsBuilder) SetCollation(c *Collation) *DeleteOptionsBuilder {
	d.Opts = append(d.Opts, func(args *DeleteOptions) error { args.Collation = c; return nil })
	return d
}

// SetHint sets the value for the Hint field.
func (d *DeleteOptionsBuilder) SetHint(h interface{}) *DeleteOptionsBuilder {
	d.Opts = append(d.Opts, func(args *DeleteOptions) error { args.Hint = h; return nil })
	return d
}

// AggregateOptions represents arguments that can be used to configure an Aggregate
// operation.
type AggregateOptions struct {
	AllowDiskUse             *bool
	BatchSize                *int32
	BypassDocumentValidation *bool
	Collation                *Collation
	Comment                  interface{}
	Hint                     interface{}
	MaxTime                  *time.Duration
}

// AggregateOptionsBuilder contains options to configure aggregate operations.
type AggregateOptionsBuilder struct {
	Opts []func(*AggregateOptions) error
}

// Aggregate creates a new AggregateOptionsBuilder instance.
func Aggregate() *AggregateOptionsBuilder { return &AggregateOptionsBuilder{} }

// ArgsSetters returns a list of AggregateOptions setter functions.
func (a *AggregateOptionsBuilder) ArgsSetters() []func(*AggregateOptions) error { return a.Opts }

// SetAllowDiskUse sets the value for the AllowDiskUse field.
func (a *AggregateOptionsBuilder) SetAllowDiskUse(b bool) *AggregateOptionsBuilder {
	a.Opts = append(a.Opts, func(args *AggregateOptions) error { args.AllowDiskUse = &b; return nil })
	return a
}

// SetBatchSize sets the value for the BatchSize field.
func (a *AggregateOptionsBuilder) SetBatchSize(n int32) *AggregateOptionsBuilder {
	a.Opts = append(a.Opts, func(args *AggregateOptions) error { args.BatchSize = &n; return nil })
	return a
}

// SetMaxTime sets the value for the MaxTime field.
func (a *AggregateOptionsBuilder) SetMaxTime(d time.Duration) *AggregateOptionsBuilder {
	a.Opts = append(a.Opts, func(args *AggregateOptions) error { args.MaxTime = &d; return nil })
	return a
}

// SetCollation sets the value for the Collation field.
func (a *AggregateOptionsBuilder) SetCollation(c *Collation) *AggregateOptionsBuilder {
	a.Opts = append(a.Opts, func(args *AggregateOptions) error { args.Collation = c; return nil })
	return a
}

// ReturnDocument specifies whether FindOneAndUpdate/FindOneAndReplace returns the
// document as it was before or after the update.
type ReturnDocument int8

// The two ReturnDocument settings.
const (
	Before ReturnDocument = iota
	After
)

// FindOneAndUpdateOptions configures FindOneAndUpdate.
type FindOneAndUpdateOptions struct {
	ArrayFilters             []interface{}
	BypassDocumentValidation *bool
	Collation                *Collation
	Projection               interface{}
	ReturnDocument           *ReturnDocument
	Sort                     interface{}
	Upsert                   *bool
}

// FindOneAndUpdateOptionsBuilder contains options to configure FindOneAndUpdate.
type FindOneAndUpdateOptionsBuilder struct {
	Opts []func(*FindOneAndUpdateOptions) error
}

// FindOneAndUpdate creates a new FindOneAndUpdateOptionsBuilder instance.
func FindOneAndUpdate() *FindOneAndUpdateOptionsBuilder { return &FindOneAndUpdateOptionsBuilder{} }

// ArgsSetters returns a list of FindOneAndUpdateOptions setter functions.
func (f *FindOneAndUpdateOptionsBuilder) ArgsSetters() []func(*FindOneAndUpdateOptions) error {
	return f.Opts
}

// SetReturnDocument sets the value for the ReturnDocument field.
func (f *FindOneAndUpdateOptionsBuilder) SetReturnDocument(rd ReturnDocument) *FindOneAndUpdateOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOneAndUpdateOptions) error { args.ReturnDocument = &rd; return nil })
	return f
}

// SetUpsert sets the value for the Upsert field.
func (f *FindOneAndUpdateOptionsBuilder) SetUpsert(b bool) *FindOneAndUpdateOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOneAndUpdateOptions) error { args.Upsert = &b; return nil })
	return f
}

// SetProjection sets the value for the Projection field.
func (f *FindOneAndUpdateOptionsBuilder) SetProjection(p interface{}) *FindOneAndUpdateOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOneAndUpdateOptions) error { args.Projection = p; return nil })
	return f
}

// SetSort sets the value for the Sort field.
func (f *FindOneAndUpdateOptionsBuilder) SetSort(sort interface{}) *FindOneAndUpdateOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOneAndUpdateOptions) error { args.Sort = sort; return nil })
	return f
}

// FindOneAndReplaceOptions configures FindOneAndReplace.
type FindOneAndReplaceOptions struct {
	BypassDocumentValidation *bool
	Collation                *Collation
	Projection               interface{}
	ReturnDocument           *ReturnDocument
	Sort                     interface{}
	Upsert                   *bool
}

// FindOneAndReplaceOptionsBuilder contains options to configure FindOneAndReplace.
type FindOneAndReplaceOptionsBuilder struct {
	Opts []func(*FindOneAndReplaceOptions) error
}

// FindOneAndReplace creates a new FindOneAndReplaceOptionsBuilder instance.
func FindOneAndReplace() *FindOneAndReplaceOptionsBuilder { return &FindOneAndReplaceOptionsBuilder{} }

// ArgsSetters returns a list of FindOneAndReplaceOptions setter functions.
func (f *FindOneAndReplaceOptionsBuilder) ArgsSetters() []func(*FindOneAndReplaceOptions) error {
	return f.Opts
}

// SetReturnDocument sets the value for the ReturnDocument field.
func (f *FindOneAndReplaceOptionsBuilder) SetReturnDocument(rd ReturnDocument) *FindOneAndReplaceOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOneAndReplaceOptions) error { args.ReturnDocument = &rd; return nil })
	return f
}

// SetUpsert sets the value for the Upsert field.
func (f *FindOneAndReplaceOptionsBuilder) SetUpsert(b bool) *FindOneAndReplaceOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOneAndReplaceOptions) error { args.Upsert = &b; return nil })
	return f
}

// FindOneAndDeleteOptions configures FindOneAndDelete.
type FindOneAndDeleteOptions struct {
	Collation  *Collation
	Projection interface{}
	Sort       interface{}
}

// FindOneAndDeleteOptionsBuilder contains options to configure FindOneAndDelete.
type FindOneAndDeleteOptionsBuilder struct {
	Opts []func(*FindOneAndDeleteOptions) error
}

// FindOneAndDelete creates a new FindOneAndDeleteOptionsBuilder instance.
func FindOneAndDelete() *FindOneAndDeleteOptionsBuilder { return &FindOneAndDeleteOptionsBuilder{} }

// ArgsSetters returns a list of FindOneAndDeleteOptions setter functions.
func (f *FindOneAndDeleteOptionsBuilder) ArgsSetters() []func(*FindOneAndDeleteOptions) error {
	return f.Opts
}

// SetSort sets the value for the Sort field.
func (f *FindOneAndDeleteOptionsBuilder) SetSort(sort interface{}) *FindOneAndDeleteOptionsBuilder {
	f.Opts = append(f.Opts, func(args *FindOneAndDeleteOptions) error { args.Sort = sort; return nil })
	return f
}

// CreateCollectionOptions configures CreateCollection.
type CreateCollectionOptions struct {
	Capped                       *bool
	SizeInBytes                  *int64
	MaxDocuments                 *int64
	Collation                    *Collation
	ChangeStreamPreAndPostImages interface{}
}

// CreateCollectionOptionsBuilder contains options to configure CreateCollection.
type CreateCollectionOptionsBuilder struct {
	Opts []func(*CreateCollectionOptions) error
}

// CreateCollection creates a new CreateCollectionOptionsBuilder instance.
func CreateCollection() *CreateCollectionOptionsBuilder { return &CreateCollectionOptionsBuilder{} }

// ArgsSetters returns a list of CreateCollectionOptions setter functions.
func (c *CreateCollectionOptionsBuilder) ArgsSetters() []func(*CreateCollectionOptions) error {
	return c.Opts
}

// SetCapped sets the value for the Capped field.
func (c *CreateCollectionOptionsBuilder) SetCapped(b bool) *CreateCollectionOptionsBuilder {
	c.Opts = append(c.Opts, func(args *CreateCollectionOptions) error { args.Capped = &b; return nil })
	return c
}

// SetSizeInBytes sets the value for the SizeInBytes field.
func (c *CreateCollectionOptionsBuilder) SetSizeInBytes(n int64) *CreateCollectionOptionsBuilder {
	c.Opts = append(c.Opts, func(args *CreateCollectionOptions) error { args.SizeInBytes = &n; return nil })
	return c
}

// SetMaxDocuments sets the value for the MaxDocuments field.
func (c *CreateCollectionOptionsBuilder) SetMaxDocuments(n int64) *CreateCollectionOptionsBuilder {
	c.Opts = append(c.Opts, func(args *CreateCollectionOptions) error { args.MaxDocuments = &n; return nil })
	return c
}
