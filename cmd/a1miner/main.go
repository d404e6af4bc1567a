package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"a1miner/config"
	"a1miner/device"
	"a1miner/device/chip"
	"a1miner/device/power"
	"a1miner/log"
	"a1miner/version"
)

var mainCmd = &cobra.Command{
	Use:   "a1miner",
	Short: "Chain driver for Bitmine A1 products",
	Run: func(cmd *cobra.Command, args []string) {
		bench()
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Detect boards and chains, then exit.",
	Run: func(cmd *cobra.Command, args []string) {
		probe()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}

func init() {
	mainCmd.AddCommand(probeCmd)
	mainCmd.AddCommand(versionCmd)

	flags := mainCmd.PersistentFlags()
	flags.String("options", "", "A1 option string ref:sys:spi:chipnum:wiper:diff:mask")
	flags.String("stats-file", "", "append tuner events to this file")
	flags.Bool("autotune", false, "enable the per chip clock tuner")
	flags.Int("cutofftemp", config.DEFAULT_CUTOFF_TEMP, "throttle above this temperature")
	flags.String("power-gpios", "", "dash separated sysfs GPIOs of the board supplies")
	flags.String("loglevel", "info", "debug, info or error")

	_ = viper.BindPFlag("options", flags.Lookup("options"))
	_ = viper.BindPFlag("stats-file", flags.Lookup("stats-file"))
	_ = viper.BindPFlag("autotune", flags.Lookup("autotune"))
	_ = viper.BindPFlag("cutofftemp", flags.Lookup("cutofftemp"))
	_ = viper.BindPFlag("power-gpios", flags.Lookup("power-gpios"))
	_ = viper.BindPFlag("loglevel", flags.Lookup("loglevel"))

	viper.SetConfigName("a1miner")
	viper.AddConfigPath("/etc/a1miner")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err == nil {
		log.Infof("config file %s", viper.ConfigFileUsed())
	}
}

func loadOptions() *config.Options {
	log.SetLevel(viper.GetString("loglevel"))
	opts := config.NewOptions()
	if err := opts.Parse(viper.GetString("options")); err != nil {
		log.Errorf("%s", err)
		os.Exit(1)
	}
	opts.StatsFileName = viper.GetString("stats-file")
	opts.EnableAutoTune = viper.GetBool("autotune")
	opts.CutoffTemp = viper.GetInt("cutofftemp")
	opts.PowerGpios = config.ParseGpioList(viper.GetString("power-gpios"))
	return opts
}

func probe() {
	opts := loadOptions()
	drv := device.Detect(opts, &benchHost{}, false)
	if drv == nil {
		fmt.Println("no A1 hardware found")
		os.Exit(1)
	}
	fmt.Printf("%s: %d chains, %d cores\n", drv.Name, len(drv.Chains), drv.NumCores())
	for _, ch := range drv.Chains {
		fmt.Println(ch.Statline())
	}
	drv.Shutdown()
}

// benchHost feeds the chains random self test work and accepts every
// nonce. Useful to soak a board without a pool connection.
type benchHost struct {
	mu        sync.Mutex
	issued    int
	completed int
	nonces    int
}

func (my *benchHost) GetQueued() *chip.Work {
	w := &chip.Work{
		Midstate:   make([]byte, 32),
		Tail:       make([]byte, 12),
		DeviceDiff: 1.0,
	}
	_, _ = rand.Read(w.Midstate)
	_, _ = rand.Read(w.Tail)
	my.mu.Lock()
	my.issued++
	my.mu.Unlock()
	return w
}

func (my *benchHost) SubmitNonce(w *chip.Work, nonce uint32) bool {
	my.mu.Lock()
	my.nonces++
	my.mu.Unlock()
	log.Debugf("bench: nonce %08x", nonce)
	return true
}

func (my *benchHost) WorkCompleted(w *chip.Work) {
	my.mu.Lock()
	my.completed++
	my.mu.Unlock()
}

func (my *benchHost) WorkRestart() bool { return false }

func bench() {
	opts := loadOptions()
	host := &benchHost{}
	drv := device.Detect(opts, host, false)
	if drv == nil {
		log.Errorf("no A1 hardware found")
		os.Exit(1)
	}

	mgr := device.NewManager(drv)
	mgr.Run()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	<-c

	mgr.Exit()
	power.AllOff()
	host.mu.Lock()
	log.Infof("bench: %d work issued, %d retired, %d nonces", host.issued, host.completed, host.nonces)
	host.mu.Unlock()
	log.Info("=============== a1miner stop ===============")
}

func main() {
	if err := mainCmd.Execute(); err != nil {
		log.Errorf("%s", err)
		os.Exit(1)
	}
}
