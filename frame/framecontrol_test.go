package frame

import "testing"

func TestFrameControl_ParseRejectsShortBuffer(t *testing.T) {
	if _, err := ParseFrameControl([]byte{0x01}); err == nil {
		t.Fatal("expected error for 1-byte buffer")
	}
}

func TestFrameControl_DataFrameFields(t *testing.T) {
	// Frame type=Data(001), security=0, pending=0, ack=1, panIDCompression=1,
	// seqSuppression=0, iePresent=0, dstMode=Short(10), frameVersion=2020(10),
	// srcMode=Short(10).
	buf := []byte{0x00, 0x00}
	fc := NewFrameControl(buf)
	fc.SetFrameType(FrameTypeData)
	fc.SetAckRequest(true)
	fc.SetPanIDCompression(true)
	fc.SetDstAddressingMode(AddressingModeShort)
	fc.SetSrcAddressingMode(AddressingModeShort)
	fc.SetFrameVersion(FrameVersion2020)

	if fc.FrameType() != FrameTypeData {
		t.Errorf("FrameType = %v, want Data", fc.FrameType())
	}
	if !fc.AckRequest() {
		t.Error("AckRequest = false, want true")
	}
	if !fc.PanIDCompression() {
		t.Error("PanIDCompression = false, want true")
	}
	if fc.SecurityEnabled() {
		t.Error("SecurityEnabled = true, want false")
	}
	if fc.DstAddressingMode() != AddressingModeShort {
		t.Errorf("DstAddressingMode = %v, want Short", fc.DstAddressingMode())
	}
	if fc.SrcAddressingMode() != AddressingModeShort {
		t.Errorf("SrcAddressingMode = %v, want Short", fc.SrcAddressingMode())
	}
	if fc.FrameVersion() != FrameVersion2020 {
		t.Errorf("FrameVersion = %v, want 2020", fc.FrameVersion())
	}
}

func TestFrameControl_SettersDoNotDisturbOtherFields(t *testing.T) {
	buf := []byte{0x00, 0x00}
	fc := NewFrameControl(buf)
	fc.SetFrameType(FrameTypeMACCommand)
	fc.SetInformationElementsPresent(true)
	fc.SetSequenceNumberSuppression(true)

	if fc.FrameType() != FrameTypeMACCommand {
		t.Errorf("FrameType = %v, want MACCommand", fc.FrameType())
	}
	if !fc.InformationElementsPresent() {
		t.Error("InformationElementsPresent = false, want true")
	}
	if !fc.SequenceNumberSuppression() {
		t.Error("SequenceNumberSuppression = false, want true")
	}
	if fc.AckRequest() {
		t.Error("AckRequest should remain false")
	}
}

func TestFrameControl_IsEnhancedBeaconAndAck(t *testing.T) {
	buf := []byte{0x00, 0x00}
	fc := NewFrameControl(buf)
	fc.SetFrameType(FrameTypeBeacon)
	fc.SetFrameVersion(FrameVersion2020)
	if !fc.IsEnhancedBeacon() {
		t.Error("expected IsEnhancedBeacon")
	}

	fc.SetFrameType(FrameTypeAck)
	if !fc.IsEnhancedAck() {
		t.Error("expected IsEnhancedAck")
	}
	if fc.IsEnhancedBeacon() {
		t.Error("should no longer be an enhanced beacon")
	}
}
