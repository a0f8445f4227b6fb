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
	"encoding/json"
	"fmt"

	. "github.com/Comcast/ouro/util/testutil"
)

// toHTTP makes the HTTP request described by an event addressed to
// "http" and submits the response back to a cell.
//
// The response goes to the cell that published the event, or to the
// cell named by the event's "replyTo" property.
func (s *Service) toHTTP(ctx context.Context, from string, m map[string]interface{}) error {
	msg, have := m["request"]
	if !have {
		return fmt.Errorf("HTTP error no 'request' in %s", JS(m))
	}

	replyTo := from
	if x, have := m["replyTo"]; have {
		if id, is := x.(string); is {
			replyTo = id
		}
	}

	var r HTTPRequest
	{
		// Sorry.
		js, err := json.Marshal(&msg)
		if err != nil {
			return fmt.Errorf("Service toHTTP Marshal error %s", err)
		}
		if err = json.Unmarshal(js, &r); err != nil {
			return fmt.Errorf("Service toHTTP Unmarshal error %s", err)
		}
	}

	return r.Do(ctx, func(ctx context.Context, resp *HTTPResponse) error {
		resp.From = "http" // me

		// Again: sorry.
		js, err := json.Marshal(&resp)
		if err != nil {
			return fmt.Errorf("Service toHTTP result Marshal error %s", err)
		}
		var msg map[string]interface{}
		if err = json.Unmarshal(js, &msg); err != nil {
			return fmt.Errorf("Service toHTTP result Unmarshal error %s", err)
		}

		return s.Submit(ctx, replyTo, msg)
	})
}
