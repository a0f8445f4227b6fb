/* Copyright 2019 Comcast Cable Communications Management, LLC
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

package sio

import (
	"context"
	"time"
)

// Update reports one step of a cell: the event that was reduced and
// the state that resulted.
type Update struct {
	// Seq numbers a cell's updates from zero.
	Seq int64 `json:"seq"`

	// At is the wall-clock publication time.
	At time.Time `json:"at"`

	// Event is the reduced event; nil in the leading update.
	Event interface{} `json:"event,omitempty"`

	// State is the state after reduction.
	State interface{} `json:"state"`

	// Err reports a cell-level problem (bad input, timer trouble)
	// instead of a step.
	Err string `json:"err,omitempty"`
}

// Couplings provide channels for event input and update output.
//
// For example, an implementation could couple a cell to an MQTT
// broker.
type Couplings interface {
	// Start initializes the Couplings.
	Start(context.Context) error

	// IO returns the input and output channels.  The third channel
	// is closed when the input side is closed.
	IO(context.Context) (chan interface{}, chan *Update, chan bool, error)

	// Stop shuts down the Couplings.
	Stop(context.Context) error
}
