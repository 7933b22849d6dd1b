package conf

import "github.com/spf13/viper"

// setDefaultConfig registers every field's default with viper so that an
// absent or partial config.yaml still produces a complete Settings value.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("audio.samplerate", 44100)
	viper.SetDefault("audio.chunksize", 512)
	viper.SetDefault("audio.channels", 2)

	viper.SetDefault("sink.device.ringcapacitychunks", 8)
	viper.SetDefault("sink.device.xrunmaxretries", 5)
	viper.SetDefault("sink.device.xrunretrydelayms", 10)

	viper.SetDefault("sink.file.defaultcodec", "wav")
	viper.SetDefault("sink.file.defaultsamplerate", 44100)
	viper.SetDefault("sink.file.defaultchannellayout", "stereo")

	viper.SetDefault("control.enabled", true)
	viper.SetDefault("control.listen", "127.0.0.1:8090")

	viper.SetDefault("control.auth.enabled", false)
	viper.SetDefault("control.auth.sessionsecret", "")
	viper.SetDefault("control.auth.username", "")
	viper.SetDefault("control.auth.passwordhash", "")
	viper.SetDefault("control.auth.oauth.provider", "")
	viper.SetDefault("control.auth.oauth.clientid", "")
	viper.SetDefault("control.auth.oauth.clientsecret", "")
	viper.SetDefault("control.auth.oauth.redirecturl", "")
	viper.SetDefault("control.auth.loginratepersecond", 1.0)

	viper.SetDefault("session.path", "")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.dsn", "")

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.intervalseconds", 30)
	viper.SetDefault("monitor.cpuwarnpercent", 80.0)
	viper.SetDefault("monitor.cpucritpercent", 95.0)
	viper.SetDefault("monitor.memorywarnpercent", 80.0)
	viper.SetDefault("monitor.memorycritpercent", 95.0)
	viper.SetDefault("monitor.diskwarnpercent", 80.0)
	viper.SetDefault("monitor.diskcritpercent", 95.0)
	viper.SetDefault("monitor.diskpaths", []string{})
	viper.SetDefault("monitor.hysteresispercent", 5.0)
	viper.SetDefault("monitor.criticalresendminutes", 30)

	viper.SetDefault("notify.mqtt.enabled", false)
	viper.SetDefault("notify.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("notify.mqtt.topic", "talkgraph/events")
	viper.SetDefault("notify.mqtt.clientid", "talkgraph")

	viper.SetDefault("notify.webhook.enabled", false)
	viper.SetDefault("notify.webhook.url", "")

	viper.SetDefault("remote.sftp.enabled", false)
	viper.SetDefault("remote.sftp.host", "")
	viper.SetDefault("remote.sftp.port", 22)
	viper.SetDefault("remote.sftp.user", "")
	viper.SetDefault("remote.sftp.keypath", "")

	viper.SetDefault("history.enabled", false)
	viper.SetDefault("history.driver", "sqlite")
	viper.SetDefault("history.sqlite.path", "talkgraph-history.db")
	viper.SetDefault("history.mysql.host", "")
	viper.SetDefault("history.mysql.port", "3306")
	viper.SetDefault("history.mysql.user", "")
	viper.SetDefault("history.mysql.password", "")
	viper.SetDefault("history.mysql.database", "")
}

// validateSettings clamps or corrects values that would otherwise make the
// scheduler or sinks misbehave; it never returns an error, mirroring the
// teacher's best-effort validation pass run right after Load.
func validateSettings(s *Settings) {
	if s.Audio.SampleRate <= 0 {
		s.Audio.SampleRate = 44100
	}
	if s.Audio.ChunkSize <= 0 {
		s.Audio.ChunkSize = 512
	}
	if s.Audio.Channels <= 0 {
		s.Audio.Channels = 2
	}
	if s.Sink.Device.RingCapacityChunks <= 0 {
		s.Sink.Device.RingCapacityChunks = 8
	}
	if s.Sink.Device.XrunMaxRetries <= 0 {
		s.Sink.Device.XrunMaxRetries = 5
	}
	if s.Sink.File.DefaultCodec == "" {
		s.Sink.File.DefaultCodec = "wav"
	}
	if s.Control.Listen == "" {
		s.Control.Listen = "127.0.0.1:8090"
	}
	if s.Control.Auth.LoginRatePerSecond <= 0 {
		s.Control.Auth.LoginRatePerSecond = 1.0
	}
}
