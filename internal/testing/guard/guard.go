// Package guard flags the process as running under test so binaries and
// helpers skip external side effects. Import it for its side effect.
package guard

import (
	"os"
	"sync"
)

// EnvVar names the environment flag read by app.InTestMode.
const EnvVar = "STOCKFLOW_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(EnvVar) == "" {
			_ = os.Setenv(EnvVar, "1")
		}
	})
}
