package main

import (
	"flag"

	"github.com/golang/glog"

	fx "github.com/robotalks/romi.go/pkg/framework"
	"github.com/robotalks/romi.go/pkg/romi"
	"github.com/robotalks/romi.go/pkg/sim/visualization/see"
)

func init() {
	romi.SetupFlags()
	see.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	r, err := romi.Open(romi.NewConfig())
	if err != nil {
		glog.Exitf("romi: %v", err)
	}
	defer r.Close()

	if err := fx.NewRunner().HandleSignals().Go(r).Wait(); err != nil {
		glog.Errorf("romi: %v", err)
	}
}
