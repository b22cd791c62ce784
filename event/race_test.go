// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import (
	"sync"
	"testing"
)

// TestPublishUnsubscribeRace runs Publish, Unsubscribe and Stop concurrently
// to surface races; none of them may panic.
func TestPublishUnsubscribeRace(t *testing.T) {
	const iters = 500
	for range iters {
		eb := NewEventBus(nil, nil)
		typ := EventType("race.test")
		subId, ch := eb.Subscribe(typ)

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := range 10 {
				eb.Publish(typ, NewEvent(typ, j))
			}
		}()
		go func() {
			defer wg.Done()
			eb.Unsubscribe(typ, subId)
			eb.Stop()
		}()
		go func() {
			defer wg.Done()
			for range ch {
			}
		}()
		wg.Wait()
	}
}

// TestSubscribeFuncStopRace checks that Stop never waits on a handler
// goroutine registered after it started
func TestSubscribeFuncStopRace(t *testing.T) {
	const iters = 500
	for range iters {
		eb := NewEventBus(nil, nil)
		typ := EventType("race.subscribefunc.stop")

		var wg sync.WaitGroup
		for range 5 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				eb.SubscribeFunc(typ, func(Event) {})
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			eb.Stop()
		}()
		wg.Wait()
		eb.Stop()
	}
}
