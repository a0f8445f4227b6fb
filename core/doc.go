/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


// Package core provides the core gear for feedback-driven state
// machines.  A System holds a State, applies Events to it through a
// pure Reducer, and runs Feedbacks: declarative side-effect processes
// that watch the resulting sequence of Steps and submit more Events
// into the same loop.
//
// The primary type is System, and the primary methods are Submit()
// and Subscribe().  A System is built from an initial State, an
// Executor, a Reducer, and zero or more Feedbacks.  Every Event,
// whether submitted by the caller or emitted by a running effect,
// goes through one FIFO and is reduced strictly one at a time; the
// resulting Step (the new State plus the Event that produced it) is
// then delivered to subscribers and to each Feedback in order.
//
// Ideally a Reducer does not block or perform any IO.  Instead, work
// that touches the world belongs in a Feedback effect.  An effect
// runs on its own goroutine, reports what it learns by emitting
// Events, and is started and canceled for you according to the
// Feedback's policy: restart with the latest trigger, merge
// concurrent runs, cancel when the trigger goes away, skip repeated
// triggers, or fire once on an edge.  The factory functions in this
// package (Feed, WithLatestState, Lensing, and friends) each fix one
// such policy.
//
// In order for any of that to matter, the package user must do
// something with the State: Subscribe() delivers the current State
// immediately and every later State in order, and State() reads the
// current one at any time.
//
// See https://github.com/Comcast/ouro for an overview.
package core
