//go:build !linux

package main

import (
	"errors"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/regmap"
)

type registerRegion interface {
	regmap.Port
	Close() error
}

func openRegisters(string, int64, uint32) (registerRegion, error) {
	return nil, errors.New("register access needs Linux; use -simulate")
}
