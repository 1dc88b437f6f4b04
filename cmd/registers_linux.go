package main

import (
	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/regmap"
)

type registerRegion interface {
	regmap.Port
	Close() error
}

func openRegisters(path string, base int64, size uint32) (registerRegion, error) {
	return regmap.OpenDevMem(path, base, size)
}
