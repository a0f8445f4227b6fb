/* Copyright 2018 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *      http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"fmt"

	"github.com/Comcast/ouro/script"
	. "github.com/Comcast/ouro/util/testutil"
)

// SOp is a Service Operation.
//
// Only one of GetDef or COp should have a value.
type SOp struct {
	// GetDef is a utility that reads a definition from the
	// service's defs directory.
	GetDef *GetDefOp `json:"getDef,omitempty" yaml:",omitempty"`

	// Error will hold an error (if any) that results from
	// processing this operation.
	Error error `json:"-" yaml:"-"`

	// Err will hold a string representation of an error (if any)
	// that results from processing this operation.
	Err string `json:"err,omitempty" yaml:",omitempty"`

	// COp gives a cell operation.
	COp *COp `json:"cop,omitempty" yaml:"cop,omitempty"`
}

// erred is a utility function to return values to assign to operation
// Error and Err fields.
func erred(err error) (error, string) {
	if err == nil {
		return nil, ""
	}
	return err, err.Error()
}

func (o *SOp) Do(ctx context.Context, s *Service) error {

	s.op(ctx, map[string]interface{}{
		"do": o,
	})

	var err error
	if o.GetDef != nil {
		err = o.GetDef.Do(ctx, s)
	} else if o.COp != nil {
		err = o.COp.Do(ctx, s)
	} else {
		err = fmt.Errorf("not implemented: %s", JS(o))
	}

	if err != nil && o.Error == nil {
		o.Error, o.Err = erred(err)
	}

	s.op(ctx, map[string]interface{}{
		"did": o,
	})

	return o.Error
}

type GetDefOp struct {
	// Name names a definition in the service's defs directory.
	Name string `json:"name"`

	// Def is the parsed definition.
	Def *script.Def `json:"def,omitempty" yaml:",omitempty"`
}

func (o *GetDefOp) Do(ctx context.Context, s *Service) error {
	var err error
	o.Def, err = s.GetDef(ctx, o.Name)
	return err
}

// COp is a Cell Operation.
//
// In normal use, only one field should be given.
type COp struct {
	// Make adds a cell to the service.
	Make *OpMake `json:"make,omitempty" yaml:",omitempty"`

	// Rm removes a cell from the service.
	Rm *OpRm `json:"rm,omitempty" yaml:",omitempty"`

	// Submit sends an event to a cell.
	Submit *OpSubmit `json:"submit,omitempty" yaml:",omitempty"`

	// List reports the hosted cells and their current states.
	List *OpList `json:"list,omitempty" yaml:",omitempty"`
}

func (o *COp) Do(ctx context.Context, s *Service) error {
	if o.Make != nil {
		return o.Make.Do(ctx, s)
	}
	if o.Rm != nil {
		return o.Rm.Do(ctx, s)
	}
	if o.Submit != nil {
		return o.Submit.Do(ctx, s)
	}
	if o.List != nil {
		return o.List.Do(ctx, s)
	}
	return fmt.Errorf("empty cop: %s", JS(o))
}

type OpMake struct {
	// Oid is the optional operation id.  A "transaction" id.
	Oid string `json:"oid,omitempty" yaml:",omitempty"`

	// Id is the new cell's id.
	Id string `json:"id"`

	// Def names a definition in the service's defs directory.
	Def string `json:"def,omitempty" yaml:",omitempty"`

	// Source is an inline YAML definition (used instead of Def).
	Source string `json:"source,omitempty" yaml:",omitempty"`

	// State optionally overrides the definition's initial state.
	State interface{} `json:"state,omitempty" yaml:",omitempty"`

	// Error will hold an error (if any) that results from
	// processing this operation.
	Error error `json:"-" yaml:"-"`

	// Err will hold a string representation of an error (if any)
	// that results from processing this operation.
	Err string `json:"err,omitempty" yaml:",omitempty"`
}

func (o *OpMake) Do(ctx context.Context, s *Service) error {
	var (
		def *script.Def
		err error
	)
	switch {
	case o.Source != "":
		def, err = script.ParseDef([]byte(o.Source))
	case o.Def != "":
		def, err = s.GetDef(ctx, o.Def)
	default:
		err = fmt.Errorf("no def given")
	}
	if err == nil {
		err = s.MakeCell(ctx, o.Id, def, o.State)
	}
	o.Error, o.Err = erred(err)
	return o.Error
}

type OpRm struct {
	// Oid is the optional operation id.  A "transaction" id.
	Oid string `json:"oid,omitempty" yaml:",omitempty"`

	// Id is the id of the cell to remove.
	Id string `json:"id"`

	// Error will hold an error (if any) that results from
	// processing this operation.
	Error error `json:"-" yaml:"-"`

	// Err will hold a string representation of an error (if any)
	// that results from processing this operation.
	Err string `json:"err,omitempty" yaml:",omitempty"`
}

func (o *OpRm) Do(ctx context.Context, s *Service) error {
	o.Error, o.Err = erred(s.RemCell(ctx, o.Id))
	return o.Error
}

type OpSubmit struct {
	// Oid is the optional operation id.  A "transaction" id.
	Oid string `json:"oid,omitempty" yaml:",omitempty"`

	// Id is the id of the target cell.
	Id string `json:"id"`

	// Message is the event to submit.  A message with a "timers"
	// property controls the cell's timers instead.
	Message interface{} `json:"message,omitempty" yaml:",omitempty"`

	// Error will hold an error (if any) that results from
	// processing this operation.
	Error error `json:"-" yaml:"-"`

	// Err will hold a string representation of an error (if any)
	// that results from processing this operation.
	Err string `json:"err,omitempty" yaml:",omitempty"`
}

func (o *OpSubmit) Do(ctx context.Context, s *Service) error {
	o.Error, o.Err = erred(s.Submit(ctx, o.Id, o.Message))
	return o.Error
}

type OpList struct {
	// Oid is the optional operation id.  A "transaction" id.
	Oid string `json:"oid,omitempty" yaml:",omitempty"`

	// Cells maps cell ids to their current states.
	Cells map[string]interface{} `json:"cells,omitempty" yaml:",omitempty"`
}

func (o *OpList) Do(ctx context.Context, s *Service) error {
	o.Cells = s.ListCells(ctx)
	return nil
}
