package session

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapDumper records replayed SNMP datagrams to a pcap artifact so a
// run can be re-examined in standard capture tooling. Frames are
// synthetic: the replay is client-driven and nothing is sniffed off the
// wire.
type pcapDumper struct {
	file    *os.File
	writer  *pcapgo.Writer
	dstIP   net.IP
	dstPort int
}

func newPcapDumper(path, targetHost string, targetPort int) (*pcapDumper, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, err
	}

	dst := net.ParseIP(targetHost)
	if dst == nil {
		if addrs, err := net.LookupIP(targetHost); err == nil && len(addrs) > 0 {
			dst = addrs[0]
		} else {
			dst = net.IPv4(127, 0, 0, 1)
		}
	}
	if v4 := dst.To4(); v4 != nil {
		dst = v4
	}
	if targetPort == 0 {
		targetPort = 161
	}

	return &pcapDumper{file: f, writer: w, dstIP: dst, dstPort: targetPort}, nil
}

// writePacket frames the hex payload as Ethernet/IPv4/UDP and appends
// it to the capture.
func (d *pcapDumper) writePacket(hexPayload string, ts time.Time) error {
	payload, err := hex.DecodeString(hexPayload)
	if err != nil {
		return fmt.Errorf("decode packet hex: %w", err)
	}

	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1).To4(),
		DstIP:    d.dstIP,
	}
	udp := layers.UDP{
		SrcPort: layers.UDPPort(49152),
		DstPort: layers.UDPPort(d.dstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(&ip); err != nil {
		return err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &ip, &udp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("serialize frame: %w", err)
	}

	data := buf.Bytes()
	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(data),
		Length:        len(data),
	}
	return d.writer.WritePacket(ci, data)
}

func (d *pcapDumper) close() error {
	return d.file.Close()
}
