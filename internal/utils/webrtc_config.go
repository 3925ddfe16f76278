package utils

import (
	"github.com/pion/webrtc/v3"

	"github.com/abhaydixit07/codehive-server/internal/config"
)

// BuildWebRTCConfig assembles the ICE server list clients use to bootstrap
// their peer connections. The server itself never opens a peer connection;
// it only hands out this configuration and relays the resulting signals.
func BuildWebRTCConfig(cfg *config.Config) webrtc.Configuration {
	var iceServers []webrtc.ICEServer

	for _, stun := range cfg.STUNServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs: []string{stun},
		})
	}

	if cfg.TURN.URL != "" {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       []string{cfg.TURN.URL},
			Username:   cfg.TURN.Username,
			Credential: cfg.TURN.Password,
		})
	}

	return webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
		BundlePolicy:       webrtc.BundlePolicyMaxBundle,
		RTCPMuxPolicy:      webrtc.RTCPMuxPolicyRequire,
	}
}
