package main

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

// Config is the process-wide configuration built once in main() from
// parsed flags, replacing the reference decoder's global tuning state.
type Config struct {
	Device      string
	AudioDevice string
	StartFreq   float64
	UseJack     bool
	OutputFile  string
	SeekOnStart bool
	Verbose     int
}

var cfg Config

var rootCmd = &cobra.Command{
	Use:   "gofm",
	Short: "FM radio tuner with RDS decoding and an optional audio-server bridge",
	Run: func(cmd *cobra.Command, args []string) {
		if err := run(&cfg); err != nil {
			log.Println(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cfg.Device, "device", "d", "/dev/radio0", "tuner device")
	rootCmd.Flags().StringVarP(&cfg.AudioDevice, "audio-device", "a", "hw:0", "ALSA capture device")
	rootCmd.Flags().Float64VarP(&cfg.StartFreq, "freq", "F", 0, "frequency to tune to on start, MHz")
	rootCmd.Flags().BoolVarP(&cfg.UseJack, "jack", "j", false, "bridge captured audio through the JACK audio server")
	rootCmd.Flags().StringVarP(&cfg.OutputFile, "output", "o", "", "also write the raw captured PCM stream to this file (no encoding)")
	rootCmd.Flags().BoolVarP(&cfg.SeekOnStart, "seek", "s", false, "seek upward for a station on start")
	rootCmd.Flags().CountVarP(&cfg.Verbose, "verbose", "v", "increase verbosity")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *Config) error {
	tuner, tun, caps, err := OpenTuner(cfg.Device)
	if err != nil {
		return err
	}
	defer tuner.Close()

	if cfg.Verbose > 0 {
		log.Printf("tuner: %s, range %.2f-%.2f MHz", cString(tun.Name[:]), tuner.Min(), tuner.Max())
	}
	if !SupportsRDS(caps) {
		log.Printf("warning: %s does not advertise RDS capture", cfg.Device)
	}

	if cfg.StartFreq > 0 {
		if err := tuner.SetFrequency(cfg.StartFreq); err != nil {
			return err
		}
	} else if cfg.SeekOnStart {
		freq, err := tuner.Seek(true)
		if err != nil {
			return err
		}
		log.Printf("Frequency tuned to %.2f", freq)
	}

	kb, err := OpenKeyboard()
	if err != nil {
		return err
	}
	defer kb.Close()

	var audioProc *exec.Cmd
	var bridge *Bridge
	if cfg.UseJack {
		bridge, err = OpenBridge(cfg.AudioDevice, 96000, 48000, 2, 4096)
		if err != nil {
			return err
		}
		defer bridge.Close()
		if err := bridge.StartJack("gofm"); err != nil {
			return err
		}
	} else {
		audioProc, err = startPassthrough(cfg)
		if err != nil {
			return err
		}
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		if bridge != nil {
			bridge.RequestQuit()
		}
		kb.Close()
		if audioProc != nil && audioProc.Process != nil {
			audioProc.Process.Kill()
		}
		os.Exit(0)
	}()

	programs := &ProgramTable{}
	decoder := NewRDSDecoder(programs, tuner, os.Stdout)
	decoder.Verbose = cfg.Verbose

	return rdsLoop(tuner, decoder, programs)
}

// rdsLoop is the single-threaded cooperative multiplexer: one poll on
// the tuner fd and stdin, 1 s timeout purely for heartbeat logging,
// handlers always run to completion before the next poll.
func rdsLoop(tuner *Tuner, decoder *RDSDecoder, programs *ProgramTable) error {
	tunerFd := int(tuner.f.Fd())
	stdinFd := int(os.Stdin.Fd())

	fds := []unix.PollFd{
		{Fd: int32(tunerFd), Events: unix.POLLIN},
		{Fd: int32(stdinFd), Events: unix.POLLIN},
	}

	var record [3]byte
	for {
		n, err := unix.Poll(fds, 1000)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if n == 0 {
			if decoder.Verbose > 0 {
				log.Println("No RDS data")
			}
			continue
		}

		if fds[0].Revents&unix.POLLIN != 0 {
			got, err := unix.Read(tunerFd, record[:])
			if err != nil {
				return err
			}
			if got == 0 {
				return nil // end-of-file on the tuner device
			}
			if got != 3 {
				if decoder.Verbose > 0 {
					log.Println(&ShortRead{Got: got, Want: 3})
				}
			} else if err := decoder.HandleRecord(record[0], record[1], record[2]); err != nil {
				if decoder.Verbose > 0 {
					log.Println(err)
				}
			}
		}

		if fds[1].Revents&unix.POLLIN != 0 {
			b, err := ReadByte(os.Stdin)
			if err != nil {
				return err
			}
			line, err := HandleKey(b, tuner, programs)
			if err != nil {
				log.Println(err)
			} else if line != "" {
				fmt.Println(line)
			}
		}
	}
}

// startPassthrough shells out to arecord piped into aplay, mirroring the
// reference decoder's execl("/bin/sh", "sh", "-c", ...) path for the
// non-JACK case. With an output file it inserts tee, so the file receives
// the raw S16_LE capture stream; no external encoder is run. No codec
// logic lives in this module; this is wiring only.
func startPassthrough(cfg *Config) (*exec.Cmd, error) {
	shellCmd := fmt.Sprintf("arecord -D %s -f S16_LE -r 96000 -c 2 -q", shellQuote(cfg.AudioDevice))
	if cfg.OutputFile != "" {
		shellCmd += fmt.Sprintf(" | tee %s | aplay -q", shellQuote(cfg.OutputFile))
	} else {
		shellCmd += " | aplay -q"
	}

	cmd := exec.Command("/bin/sh", "-c", shellCmd)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, &ConfigError{Op: "arecord pipeline", Err: err}
	}
	return cmd, nil
}

func shellQuote(s string) string {
	return "'" + s + "'"
}
