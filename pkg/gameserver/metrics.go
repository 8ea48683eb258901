package gameserver

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// note: reject_ counters are client errors, fail_ counters are likely
// problems on our side

type srvMetrics struct {
	set               *metrics.Set
	connections_total *metrics.Counter
	handshakes_total  struct {
		success                  *metrics.Counter
		reject_bad_message       *metrics.Counter
		reject_invalid_name      *metrics.Counter
		reject_invalid_signature *metrics.Counter
		reject_name_taken        *metrics.Counter
		reject_key_mismatch      *metrics.Counter
		reject_already_connected *metrics.Counter
		fail_storage_error       *metrics.Counter
		fail_token_error         *metrics.Counter
	}
	moves_total struct {
		accepted *metrics.Counter
		rejected *metrics.Counter
		teleport *metrics.Counter
		door     *metrics.Counter
	}
	broadcasts_total              *metrics.Counter
	keepalive_timeouts_total      *metrics.Counter
	level_manifest_requests_total *metrics.Counter
	level_files_requests_total    *metrics.Counter
	level_files_bytes_total       *metrics.Counter
}

func (s *Server) Metrics() *metrics.Set {
	return s.m().set
}

func (s *Server) WritePrometheus(w io.Writer) {
	s.m().set.WritePrometheus(w)
}

// m gets metrics objects for s.
//
// We use it instead of using a *metrics.Set directly because:
//   - It means we don't need to keep checking if a set is nil.
//   - It means we don't have the overhead of checking/creating each individual metric during requests.
//   - It makes typos less likely.
//   - It means that metrics still get included in the output instead of being undefined even if they start at zero.
func (s *Server) m() *srvMetrics {
	s.metricsInit.Do(func() {
		mo := &s.metricsObj
		mo.set = metrics.NewSet()
		mo.connections_total = mo.set.NewCounter(`roguetalk_server_connections_total`)
		mo.handshakes_total.success = mo.set.NewCounter(`roguetalk_server_handshakes_total{result="success"}`)
		mo.handshakes_total.reject_bad_message = mo.set.NewCounter(`roguetalk_server_handshakes_total{result="reject_bad_message"}`)
		mo.handshakes_total.reject_invalid_name = mo.set.NewCounter(`roguetalk_server_handshakes_total{result="reject_invalid_name"}`)
		mo.handshakes_total.reject_invalid_signature = mo.set.NewCounter(`roguetalk_server_handshakes_total{result="reject_invalid_signature"}`)
		mo.handshakes_total.reject_name_taken = mo.set.NewCounter(`roguetalk_server_handshakes_total{result="reject_name_taken"}`)
		mo.handshakes_total.reject_key_mismatch = mo.set.NewCounter(`roguetalk_server_handshakes_total{result="reject_key_mismatch"}`)
		mo.handshakes_total.reject_already_connected = mo.set.NewCounter(`roguetalk_server_handshakes_total{result="reject_already_connected"}`)
		mo.handshakes_total.fail_storage_error = mo.set.NewCounter(`roguetalk_server_handshakes_total{result="fail_storage_error"}`)
		mo.handshakes_total.fail_token_error = mo.set.NewCounter(`roguetalk_server_handshakes_total{result="fail_token_error"}`)
		mo.moves_total.accepted = mo.set.NewCounter(`roguetalk_server_moves_total{result="accepted"}`)
		mo.moves_total.rejected = mo.set.NewCounter(`roguetalk_server_moves_total{result="rejected"}`)
		mo.moves_total.teleport = mo.set.NewCounter(`roguetalk_server_moves_total{result="teleport"}`)
		mo.moves_total.door = mo.set.NewCounter(`roguetalk_server_moves_total{result="door"}`)
		mo.broadcasts_total = mo.set.NewCounter(`roguetalk_server_broadcasts_total`)
		mo.keepalive_timeouts_total = mo.set.NewCounter(`roguetalk_server_keepalive_timeouts_total`)
		mo.level_manifest_requests_total = mo.set.NewCounter(`roguetalk_server_level_manifest_requests_total`)
		mo.level_files_requests_total = mo.set.NewCounter(`roguetalk_server_level_files_requests_total`)
		mo.level_files_bytes_total = mo.set.NewCounter(`roguetalk_server_level_files_bytes_total`)
		mo.set.NewGauge(`roguetalk_server_sessions_current`, func() float64 {
			s.mu.Lock()
			defer s.mu.Unlock()
			return float64(len(s.players))
		})
		mo.set.NewGauge(`roguetalk_server_audio_audible_pairs`, func() float64 {
			return float64(s.audiblePairs())
		})
	})
	return &s.metricsObj
}
