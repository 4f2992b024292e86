package types

// NetworkPerformance summarises the quality signals sampled by the transport probe.
type NetworkPerformance struct {
	UDPThroughputMbps     float64 `json:"udp_throughput_mbps" yaml:"udp_throughput_mbps"`
	TCPThroughputMbps     float64 `json:"tcp_throughput_mbps" yaml:"tcp_throughput_mbps"`
	PacketLossRate        float64 `json:"packet_loss_rate" yaml:"packet_loss_rate"`
	RoundTripTimeMs       float64 `json:"round_trip_time_ms" yaml:"round_trip_time_ms"`
	ConcurrentConnections int     `json:"concurrent_connections" yaml:"concurrent_connections"`
	PacketsSent           int     `json:"packets_sent" yaml:"packets_sent"`
	BytesSent             int64   `json:"bytes_sent" yaml:"bytes_sent"`
}

// ConnectionStatistics counts the socket attempts made during a run.
type ConnectionStatistics struct {
	SuccessfulConnections  int     `json:"successful_connections" yaml:"successful_connections"`
	FailedConnections      int     `json:"failed_connections" yaml:"failed_connections"`
	TimeoutConnections     int     `json:"timeout_connections" yaml:"timeout_connections"`
	AverageHandshakeTimeMs float64 `json:"average_handshake_time_ms" yaml:"average_handshake_time_ms"`
}

// TransportMetrics is the OSI layer 4 record. Timing fields come from real socket I/O.
type TransportMetrics struct {
	Protocol               string               `json:"protocol" yaml:"protocol"`
	UDPDiscoveryTimeMs     float64              `json:"udp_discovery_time_ms" yaml:"udp_discovery_time_ms"`
	TCPConnectionTimeMs    float64              `json:"tcp_connection_time_ms" yaml:"tcp_connection_time_ms"`
	UDPDiscoverySuccess    bool                 `json:"udp_discovery_success" yaml:"udp_discovery_success"`
	TCPConnectionSuccess   bool                 `json:"tcp_connection_success" yaml:"tcp_connection_success"`
	UDPOverheadBytes       int                  `json:"udp_overhead_bytes" yaml:"udp_overhead_bytes"`
	TCPOverheadBytes       int                  `json:"tcp_overhead_bytes" yaml:"tcp_overhead_bytes"`
	TotalTransportOverhead int                  `json:"total_transport_overhead" yaml:"total_transport_overhead"`
	MultiTransportSupport  bool                 `json:"multi_transport_support" yaml:"multi_transport_support"`
	EfficiencyScore        float64              `json:"efficiency_score" yaml:"efficiency_score"`
	NetworkPerformance     NetworkPerformance   `json:"real_network_performance" yaml:"real_network_performance"`
	ConnectionStatistics   ConnectionStatistics `json:"connection_statistics" yaml:"connection_statistics"`
}

// SessionPhases breaks the synthetic commissioning time down per step.
type SessionPhases struct {
	CertificateExchangeMs float64 `json:"certificate_exchange_ms" yaml:"certificate_exchange_ms"`
	CredentialSetupMs     float64 `json:"credential_setup_ms" yaml:"credential_setup_ms"`
	NetworkConfigMs       float64 `json:"network_config_ms" yaml:"network_config_ms"`
}

// SessionMetrics is the OSI layer 5 record. Commissioning time is synthetic.
type SessionMetrics struct {
	SessionType          string        `json:"session_type" yaml:"session_type"`
	CommissioningTimeMs  float64       `json:"commissioning_time_ms" yaml:"commissioning_time_ms"`
	Phases               SessionPhases `json:"phases" yaml:"phases"`
	SessionComplexity    string        `json:"session_complexity" yaml:"session_complexity"`
	MultiAdminSupport    bool          `json:"multi_admin_support" yaml:"multi_admin_support"`
	SessionOverheadBytes int           `json:"session_overhead_bytes" yaml:"session_overhead_bytes"`
	SessionEfficiency    float64       `json:"session_efficiency" yaml:"session_efficiency"`
	SecurityLevel        string        `json:"security_level" yaml:"security_level"`
	CertificateSizeBytes int           `json:"certificate_size_bytes" yaml:"certificate_size_bytes"`
}

// PresentationMetrics is the OSI layer 6 record.
type PresentationMetrics struct {
	EncodingFormat     string  `json:"encoding_format" yaml:"encoding_format"`
	EncodingTimeMs     float64 `json:"encoding_time_ms" yaml:"encoding_time_ms"`
	RawDataSizeBytes   int     `json:"raw_data_size_bytes" yaml:"raw_data_size_bytes"`
	EncodedSizeBytes   int     `json:"encoded_size_bytes" yaml:"encoded_size_bytes"`
	CompressionRatio   float64 `json:"compression_ratio" yaml:"compression_ratio"`
	EncodingEfficiency float64 `json:"encoding_efficiency" yaml:"encoding_efficiency"`
	ClusterSupport     bool    `json:"cluster_support" yaml:"cluster_support"`
}

// ApplicationMetrics is the OSI layer 7 record.
type ApplicationMetrics struct {
	ApplicationProtocol         string   `json:"application_protocol" yaml:"application_protocol"`
	ClusterModel                string   `json:"cluster_model" yaml:"cluster_model"`
	SupportedClusters           []string `json:"supported_clusters" yaml:"supported_clusters"`
	DiscoveryTimeMs             float64  `json:"discovery_time_ms" yaml:"discovery_time_ms"`
	ClusterInitializationTimeMs float64  `json:"cluster_initialization_time_ms" yaml:"cluster_initialization_time_ms"`
	ClustersDiscovered          int      `json:"clusters_discovered" yaml:"clusters_discovered"`
	InteroperabilityScore       float64  `json:"interoperability_score" yaml:"interoperability_score"`
	ApplicationOverheadBytes    int      `json:"application_overhead_bytes" yaml:"application_overhead_bytes"`
}
