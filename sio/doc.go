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

// Package sio couples feedback systems to the world.
//
// A Cell owns one dynamic (JSON-ish) system: events arrive on an
// input channel, and every step leaves on an output channel as an
// Update.  Couplings implementations decide where those channels
// really go: stdio here, MQTT and WebSockets over in cmd/ouro.
//
// A Cell also carries Timers, which inject events later, and an
// optional Journal, which appends updates to a bbolt file for
// inspection by other tools.
package sio
