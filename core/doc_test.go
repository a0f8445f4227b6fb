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

package core

import (
	"fmt"
)

func Example() {
	sys := NewSystem(0, Immediate{},
		func(state, event int) int {
			return state + event
		},
		Imperative[int, int](func(step Step[int, int], submit func(int)) {
			if step.State == 1 {
				submit(10)
			}
		}))
	defer sys.Dispose()

	sys.Subscribe(func(state int) {
		fmt.Println(state)
	})

	sys.Submit(1)

	// Output:
	// 0
	// 1
	// 11
}
