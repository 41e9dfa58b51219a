package adapter

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/HerbHall/switchyard/pkg/models"
)

var (
	iosIfHeader   = regexp.MustCompile(`^(\S+) is (administratively down|up|down|deleted)(?:\s*\([^)]*\))?, line protocol is (\w+)`)
	iosBandwidth  = regexp.MustCompile(`\bBW (\d+) Kbit`)
	iosInBytes    = regexp.MustCompile(`(\d+) packets input, (\d+) bytes`)
	iosOutBytes   = regexp.MustCompile(`(\d+) packets output, (\d+) bytes`)
	iosInErrors   = regexp.MustCompile(`(\d+) input errors`)
	iosOutErrors  = regexp.MustCompile(`(\d+) output errors`)
	iosInputQueue = regexp.MustCompile(`Input queue: \d+/\d+/(\d+)/\d+`)
	iosOutDrops   = regexp.MustCompile(`Total output drops: (\d+)`)
	iosArpLine    = regexp.MustCompile(`^Internet\s+(\d+\.\d+\.\d+\.\d+)\s+(\S+)\s+([0-9a-fA-F]{4}\.[0-9a-fA-F]{4}\.[0-9a-fA-F]{4}|Incomplete)\s+\S+\s*(\S*)`)
	vlanSuffix    = regexp.MustCompile(`(?i)^vlan(\d+)$`)
)

// parseIOSInterfaces parses the output of "show interfaces". It returns the
// ports it could read and whether any interface block was malformed.
func parseIOSInterfaces(out string, at time.Time) ([]models.Port, bool, error) {
	var (
		ports   []models.Port
		cur     *models.Port
		partial bool
		index   int
	)

	flush := func() {
		if cur != nil {
			ports = append(ports, *cur)
			cur = nil
		}
	}

	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if m := iosIfHeader.FindStringSubmatch(line); m != nil {
			flush()
			index++
			admin, oper := "up", strings.ToLower(m[3])
			if m[2] == "administratively down" {
				admin = "down"
			}
			cur = &models.Port{
				Name:        m[1],
				Index:       index,
				AdminStatus: admin,
				OperStatus:  oper,
				UpdatedAt:   at,
			}
			continue
		}
		if cur == nil {
			if strings.TrimSpace(line) != "" && !strings.HasPrefix(line, " ") {
				partial = true
			}
			continue
		}

		trimmed := strings.TrimSpace(line)
		if desc, ok := strings.CutPrefix(trimmed, "Description: "); ok {
			cur.Description = desc
			continue
		}
		if m := iosBandwidth.FindStringSubmatch(line); m != nil {
			kbit, _ := strconv.ParseUint(m[1], 10, 64)
			cur.SpeedMbps = kbit / 1000
		}
		if m := iosInputQueue.FindStringSubmatch(line); m != nil {
			cur.Counters.InDiscards = mustUint(m[1], &partial)
		}
		if m := iosOutDrops.FindStringSubmatch(line); m != nil {
			cur.Counters.OutDiscards = mustUint(m[1], &partial)
		}
		if m := iosInBytes.FindStringSubmatch(line); m != nil {
			cur.Counters.InOctets = mustUint(m[2], &partial)
		}
		if m := iosOutBytes.FindStringSubmatch(line); m != nil {
			cur.Counters.OutOctets = mustUint(m[2], &partial)
		}
		if m := iosInErrors.FindStringSubmatch(line); m != nil {
			cur.Counters.InErrors = mustUint(m[1], &partial)
		}
		if m := iosOutErrors.FindStringSubmatch(line); m != nil {
			cur.Counters.OutErrors = mustUint(m[1], &partial)
		}
	}
	flush()
	if err := sc.Err(); err != nil {
		return ports, true, err
	}

	if len(ports) == 0 && strings.TrimSpace(out) != "" {
		return nil, false, fmt.Errorf("no interface blocks in %d bytes of output", len(out))
	}
	// IOS counters are 64-bit on every platform we read.
	for i := range ports {
		ports[i].Counters.Wide = true
	}
	if ports == nil {
		ports = []models.Port{}
	}
	return ports, partial, nil
}

// parseIOSArp parses "show arp". Incomplete entries are skipped.
func parseIOSArp(out, device string, at time.Time) ([]models.Host, error) {
	hosts := []models.Host{}
	sawHeader := false

	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "Protocol") {
			sawHeader = true
			continue
		}
		m := iosArpLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if m[3] == "Incomplete" {
			continue
		}
		h := models.Host{
			IP:        m[1],
			MAC:       dottedToColon(m[3]),
			Device:    device,
			Port:      m[4],
			FirstSeen: at,
			LastSeen:  at,
		}
		if vm := vlanSuffix.FindStringSubmatch(m[4]); vm != nil {
			h.VLAN, _ = strconv.Atoi(vm[1])
		}
		hosts = append(hosts, h)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if !sawHeader && len(hosts) == 0 && strings.TrimSpace(out) != "" {
		return nil, fmt.Errorf("unrecognized arp output")
	}
	return hosts, nil
}

// dottedToColon converts 0011.2233.4455 to 00:11:22:33:44:55.
func dottedToColon(mac string) string {
	raw := strings.ToLower(strings.ReplaceAll(mac, ".", ""))
	if len(raw) != 12 {
		return strings.ToLower(mac)
	}
	var b strings.Builder
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(raw[i : i+2])
	}
	return b.String()
}

func mustUint(s string, bad *bool) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		*bad = true
		return 0
	}
	return v
}
