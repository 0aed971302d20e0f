// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package linelock

import "code.hybscloud.com/atomix"

// Serial is a monotonically increasing identifier.
// Threads and activations draw from separate counters.
type Serial = uint32

// threadCounter and activationCounter are the global monotonic counters.
var (
	threadCounter     atomix.Uint32
	activationCounter atomix.Uint32
)

// nextThreadSerial returns the next monotonically increasing thread serial.
func nextThreadSerial() Serial {
	return threadCounter.Add(1)
}

// nextActivationSerial returns the next monotonically increasing activation serial.
func nextActivationSerial() Serial {
	return activationCounter.Add(1)
}
