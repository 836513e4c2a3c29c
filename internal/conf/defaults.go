// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets default values for every configuration key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "UTC")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/seisnet.log")
	v.SetDefault("logging.file_output.level", "info")

	v.SetDefault("templates.keyfile", "templates.yaml")
	v.SetDefault("templates.preevent", 5*time.Second)
	v.SetDefault("templates.duration", 30*time.Second)

	v.SetDefault("provider.type", ProviderLocal)
	v.SetDefault("provider.local.root", "data/")
	v.SetDefault("provider.local.cachettl", 10*time.Minute)
	v.SetDefault("provider.network.baseurl", "")
	v.SetDefault("provider.network.timeout", 30*time.Second)
	v.SetDefault("provider.network.ratelimit", 5.0)
	v.SetDefault("provider.network.burst", 2)

	v.SetDefault("cluster.threshold", 0.5)
	v.SetDefault("cluster.maxlag", 2*time.Second)

	v.SetDefault("subspace.normalize", true)
	v.SetDefault("subspace.usesingles", true)
	v.SetDefault("subspace.rank.mode", "energy")
	v.SetDefault("subspace.rank.count", 1)
	v.SetDefault("subspace.rank.energyfraction", 0.9)
	v.SetDefault("subspace.validation.enabled", true)
	v.SetDefault("subspace.validation.minsimilarity", 0.5)
	v.SetDefault("subspace.calibration.mode", "far")
	v.SetDefault("subspace.calibration.threshold", 0.5)
	v.SetDefault("subspace.calibration.falsealarmrate", 1e-6)
	v.SetDefault("subspace.calibration.distribution", "beta")
	v.SetDefault("subspace.calibration.histogrambins", 100)
	v.SetDefault("subspace.calibration.noisewindows", 500)
	v.SetDefault("subspace.calibration.noisestart", "")
	v.SetDefault("subspace.calibration.noiseend", "")
	v.SetDefault("subspace.calibration.seed", 1)

	v.SetDefault("scan.usesubspaces", true)
	v.SetDefault("scan.stride", 1)
	v.SetDefault("scan.minseparation", 30*time.Second)
	v.SetDefault("scan.gappolicy", "skip")
	v.SetDefault("scan.gaptolerance", 0.0)
	v.SetDefault("scan.estimatemagnitudes", true)
	v.SetDefault("scan.histogram", false)
	v.SetDefault("scan.histogrambins", 100)
	v.SetDefault("scan.start", "")
	v.SetDefault("scan.end", "")
	v.SetDefault("scan.chunk", time.Hour)
	v.SetDefault("scan.workers", 0)
	v.SetDefault("scan.tasktimeout", 10*time.Minute)

	v.SetDefault("associate.subspacebuffer", 2*time.Second)
	v.SetDefault("associate.singletonbuffer", 30*time.Second)
	v.SetDefault("associate.requiredstations", 2)
	v.SetDefault("associate.verificationbuffer", 15*time.Second)
	v.SetDefault("associate.referencefile", "")
	v.SetDefault("associate.reduceduplicates", true)
	v.SetDefault("associate.falsepositive.enabled", false)
	v.SetDefault("associate.falsepositive.minconfidence", 0.0)

	v.SetDefault("output.sqlite.enabled", true)
	v.SetDefault("output.sqlite.path", "seisnet.db")
	v.SetDefault("output.mysql.enabled", false)
	v.SetDefault("output.mysql.username", "")
	v.SetDefault("output.mysql.password", "")
	v.SetDefault("output.mysql.passwordfile", "")
	v.SetDefault("output.mysql.database", "")
	v.SetDefault("output.mysql.host", "localhost")
	v.SetDefault("output.mysql.port", "3306")
	v.SetDefault("output.export.enabled", false)
	v.SetDefault("output.export.path", "output/")
	v.SetDefault("output.export.format", "csv")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "seisnet")
	v.SetDefault("mqtt.clientid", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.passwordfile", "")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("mqtt.timeout", 10*time.Second)

	v.SetDefault("server.listen", "localhost:8080")
	v.SetDefault("server.metrics", true)
}
