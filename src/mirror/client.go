package mirror

import (
	"github.com/mosaicnetworks/ledgerclient/src/network"
	"github.com/sirupsen/logrus"
)

// Client is what mirror queries need from the owning client.
type Client interface {
	MirrorNetwork() *network.MirrorNetwork
	Logger() *logrus.Entry
}
