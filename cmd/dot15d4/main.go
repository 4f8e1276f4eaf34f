// Command dot15d4 decodes a single IEEE 802.15.4 PSDU given as a hex string
// and prints its fields. It exists as a quick inspection tool alongside the
// library, not as part of the MAC's core operation.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/gowpan/dot15d4/frame"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <hex-psdu>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	raw, err := hex.DecodeString(strings.TrimSpace(flag.Arg(0)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid hex: %v\n", err)
		os.Exit(1)
	}

	fr, err := frame.Parse(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse: %v\n", err)
		os.Exit(1)
	}

	dumpFrame(fr)
}

func dumpFrame(fr frame.Frame) {
	fc := fr.FrameControl()
	fmt.Printf("frame type:        %s\n", frameTypeName(fc.FrameType()))
	fmt.Printf("frame version:     %d\n", fc.FrameVersion())
	fmt.Printf("security enabled:  %t\n", fc.SecurityEnabled())
	fmt.Printf("ack requested:     %t\n", fc.AckRequest())
	fmt.Printf("ie present:        %t\n", fc.InformationElementsPresent())

	if seq, ok := fr.SequenceNumber(); ok {
		fmt.Printf("sequence number:   %d\n", seq)
	} else {
		fmt.Printf("sequence number:   suppressed\n")
	}

	addr := fr.Addressing()
	if dst, err := addr.DstAddress(); err == nil && !dst.IsAbsent() {
		fmt.Printf("dst address:       %s\n", dst)
	}
	if src, err := addr.SrcAddress(); err == nil && !src.IsAbsent() {
		fmt.Printf("src address:       %s\n", src)
	}
	if panID, present, err := addr.DstPanID(); err == nil && present {
		fmt.Printf("dst pan id:        0x%04x\n", panID)
	}

	if _, ok, err := fr.AuxiliarySecurityHeader(); err == nil && ok {
		fmt.Printf("auxiliary security header present\n")
	}

	if it, ok := fr.HeaderIEs(); ok {
		for {
			h, ok := it.Next()
			if !ok {
				break
			}
			fmt.Printf("header ie:         id=0x%02x len=%d\n", uint8(h.RawID()), h.Length())
			if h.RawID().IsTermination() {
				break
			}
		}
	}
	if it, ok := fr.PayloadIEs(); ok {
		for {
			p, ok := it.Next()
			if !ok {
				break
			}
			fmt.Printf("payload ie:        group=0x%x len=%d\n", uint8(p.RawGroupID()), p.Length())
		}
	}

	payload := fr.Payload()
	fmt.Printf("payload (%d bytes): %s\n", len(payload), hex.EncodeToString(payload))
	fmt.Printf("fcs valid:         %t\n", fr.CheckFCS())
}

func frameTypeName(t frame.FrameType) string {
	switch t {
	case frame.FrameTypeBeacon:
		return "beacon"
	case frame.FrameTypeData:
		return "data"
	case frame.FrameTypeAck:
		return "ack"
	case frame.FrameTypeMACCommand:
		return "mac_command"
	case frame.FrameTypeMultipurpose:
		return "multipurpose"
	case frame.FrameTypeFragmentOrFrak:
		return "fragment_or_frak"
	case frame.FrameTypeExtended:
		return "extended"
	default:
		return "unknown"
	}
}
