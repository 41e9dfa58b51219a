package catalog

import (
	"bufio"
	"bytes"
	_ "embed"
	"strings"
	"sync"
)

//go:embed oui_data.txt
var ouiRawData []byte

// OUITable provides MAC address prefix to manufacturer lookup.
type OUITable struct {
	once  sync.Once
	table map[string]string
}

// NewOUITable creates a new OUI lookup table.
func NewOUITable() *OUITable {
	return &OUITable{}
}

// Lookup returns the manufacturer for a MAC address in colon, dash, dotted
// or bare hex form. Returns "" when the prefix is unknown.
func (o *OUITable) Lookup(mac string) string {
	o.once.Do(o.load)

	prefix := ouiPrefix(mac)
	if prefix == "" {
		return ""
	}
	return o.table[prefix]
}

func (o *OUITable) load() {
	o.table = make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(ouiRawData))
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), "\t", 2)
		if len(parts) != 2 {
			continue
		}
		prefix := strings.ToUpper(strings.TrimSpace(parts[0]))
		vendor := strings.TrimSpace(parts[1])
		if prefix != "" && vendor != "" {
			o.table[prefix] = vendor
		}
	}
}

// ouiPrefix returns the first three octets as "AA:BB:CC", or "" when mac
// is too short.
func ouiPrefix(mac string) string {
	mac = strings.ToUpper(mac)
	mac = strings.NewReplacer(":", "", "-", "", ".", "").Replace(mac)
	if len(mac) < 6 {
		return ""
	}
	return mac[0:2] + ":" + mac[2:4] + ":" + mac[4:6]
}
