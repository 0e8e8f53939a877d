package p2p

import (
	"net/url"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// ParseBootstrapPeers expands and validates bootstrap peer entries.
// Each entry is either a ws:// or wss:// URL, or the path of a yaml
// file holding a list of such URLs.
func ParseBootstrapPeers(entries []string) ([]string, error) {
	peers := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.HasSuffix(entry, ".yaml") || strings.HasSuffix(entry, ".yml") {
			fromFile, err := readBootstrapFile(entry)
			if err != nil {
				return nil, err
			}
			peers = append(peers, fromFile...)
			continue
		}
		peers = append(peers, entry)
	}
	for _, p := range peers {
		u, err := url.Parse(p)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid bootstrap peer %q", p)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return nil, errors.Errorf("bootstrap peer %q must use ws:// or wss://", p)
		}
		if u.Host == "" {
			return nil, errors.Errorf("bootstrap peer %q has no host", p)
		}
	}
	return peers, nil
}

func readBootstrapFile(fileName string) ([]string, error) {
	fileContent, err := os.ReadFile(fileName) // #nosec G304
	if err != nil {
		return nil, errors.Wrapf(err, "could not read bootstrap peers file %q", fileName)
	}
	listPeers := make([]string, 0)
	if err := yaml.Unmarshal(fileContent, &listPeers); err != nil {
		return nil, errors.Wrapf(err, "could not parse bootstrap peers file %q", fileName)
	}
	return listPeers, nil
}
