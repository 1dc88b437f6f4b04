// Package bindings holds the clock IDs of supported SoCs as used by board
// descriptions. The IDs index the matching embedded clock table.
package bindings

import "github.com/k8snetworkplumbingwg/soc-clocktree/pkg/clocktree"

// Ingenic X1830
const (
	X1830ClkEXCLK clocktree.ID = iota
	X1830ClkRTCLK
	X1830ClkAPLL
	X1830ClkMPLL
	X1830ClkVPLL
	X1830ClkEPLL
	X1830ClkSCLKA
	X1830ClkCPUMUX
	X1830ClkCPU
	X1830ClkL2Cache
	X1830ClkAHB0
	X1830ClkAHB2PMUX
	X1830ClkAHB2
	X1830ClkPCLK
	X1830ClkDDR
	X1830ClkMAC
	X1830ClkMSCMUX
	X1830ClkMSC0
	X1830ClkMSC1
	X1830ClkSSIPLL
	X1830ClkSSIPLLDiv2
	X1830ClkSSIMUX
	X1830ClkSFC
	X1830ClkEMC
	X1830ClkEFUSE
	X1830ClkOTG
	X1830ClkSSI0
	X1830ClkI2C0
	X1830ClkI2C1
	X1830ClkI2C2
	X1830ClkUART0
	X1830ClkUART1
	X1830ClkSSI1
	X1830ClkPDMA
	X1830ClkTCU
	X1830ClkDTRNG
	X1830ClkOST

	X1830NumClocks = int(X1830ClkOST) + 1
)

// X1830Names maps every X1830 clock ID to its name in the clock table.
var X1830Names = map[clocktree.ID]string{
	X1830ClkEXCLK:      "ext",
	X1830ClkRTCLK:      "rtc",
	X1830ClkAPLL:       "apll",
	X1830ClkMPLL:       "mpll",
	X1830ClkVPLL:       "vpll",
	X1830ClkEPLL:       "epll",
	X1830ClkSCLKA:      "sclk_a",
	X1830ClkCPUMUX:     "cpu_mux",
	X1830ClkCPU:        "cpu",
	X1830ClkL2Cache:    "l2cache",
	X1830ClkAHB0:       "ahb0",
	X1830ClkAHB2PMUX:   "ahb2_apb_mux",
	X1830ClkAHB2:       "ahb2",
	X1830ClkPCLK:       "pclk",
	X1830ClkDDR:        "ddr",
	X1830ClkMAC:        "mac",
	X1830ClkMSCMUX:     "msc_mux",
	X1830ClkMSC0:       "msc0",
	X1830ClkMSC1:       "msc1",
	X1830ClkSSIPLL:     "ssi_pll",
	X1830ClkSSIPLLDiv2: "ssi_pll_div2",
	X1830ClkSSIMUX:     "ssi_mux",
	X1830ClkSFC:        "sfc",
	X1830ClkEMC:        "emc",
	X1830ClkEFUSE:      "efuse",
	X1830ClkOTG:        "otg",
	X1830ClkSSI0:       "ssi0",
	X1830ClkI2C0:       "i2c0",
	X1830ClkI2C1:       "i2c1",
	X1830ClkI2C2:       "i2c2",
	X1830ClkUART0:      "uart0",
	X1830ClkUART1:      "uart1",
	X1830ClkSSI1:       "ssi1",
	X1830ClkPDMA:       "pdma",
	X1830ClkTCU:        "tcu",
	X1830ClkDTRNG:      "dtrng",
	X1830ClkOST:        "ost",
}
