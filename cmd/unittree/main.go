// Command unittree is the invocation-contract entry point (§6.4): the
// external shell this spec treats as out of scope for the core, kept here
// only as the ambient wiring a runnable repository needs.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := NewRootCommand(log).Execute(); err != nil {
		log.WithError(err).Error("unittree failed")
		os.Exit(1)
	}
}
