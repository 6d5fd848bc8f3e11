package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "clock":
		monitorClock(arg(2))
	case "note":
		sendTestNote(arg(2))
	default:
		usage()
	}
}

func arg(i int) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return ""
}

func usage() {
	fmt.Println("sub000 MIDI probe")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list          - List all MIDI ports")
	fmt.Println("  clock [name]  - Monitor a MIDI clock source")
	fmt.Println("  note [name]   - Send a test note to an output")
}

func listPorts() {
	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ins := midi.GetInPorts()
		outs := midi.GetOutPorts()
		ch <- result{ins: ins, outs: outs}
	}()

	select {
	case r := <-ch:
		for i, p := range r.ins {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
		fmt.Println("\n=== MIDI Output Ports ===")
		for i, p := range r.outs {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
	}
}

// monitorClock prints the transport messages and an estimated tempo from a
// clock source, to verify a DAW's sync output before pointing sub000 at it.
func monitorClock(name string) {
	port := findIn(name)
	if port == nil {
		fmt.Println("No matching input port")
		return
	}
	fmt.Printf("Monitoring clock on %s (Ctrl+C to exit)\n", port.String())

	var pulses int
	var last time.Time
	stop, err := midi.ListenTo(port, func(msg midi.Message, timestampms int32) {
		switch {
		case msg.Is(midi.TimingClockMsg):
			pulses++
			if pulses%24 == 0 {
				now := time.Now()
				if !last.IsZero() {
					bpm := 60.0 / now.Sub(last).Seconds()
					fmt.Printf("  quarter %3d  ~%.1f bpm\n", pulses/24, bpm)
				}
				last = now
			}
		case msg.Is(midi.StartMsg):
			pulses = 0
			last = time.Time{}
			fmt.Println("  START")
		case msg.Is(midi.ContinueMsg):
			fmt.Println("  CONTINUE")
		case msg.Is(midi.StopMsg):
			fmt.Println("  STOP")
		}
	}, midi.UseTimeCode())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer stop()

	for {
		time.Sleep(time.Second)
	}
}

func sendTestNote(name string) {
	outs := midi.GetOutPorts()
	var port drivers.Out
	want := strings.ToLower(name)
	for i, p := range outs {
		if want == "" || strings.Contains(strings.ToLower(p.String()), want) {
			port = outs[i]
			break
		}
	}
	if port == nil {
		fmt.Println("No matching output port")
		return
	}

	send, err := midi.SendTo(port)
	if err != nil {
		fmt.Printf("Error opening port: %v\n", err)
		return
	}

	fmt.Printf("Sending C2 to %s\n", port.String())
	send(midi.NoteOn(0, 36, 100))
	time.Sleep(300 * time.Millisecond)
	send(midi.NoteOff(0, 36))
	fmt.Println("Done!")
	midi.CloseDriver()
}

func findIn(name string) drivers.In {
	ins := midi.GetInPorts()
	want := strings.ToLower(name)
	for i, p := range ins {
		if want == "" || strings.Contains(strings.ToLower(p.String()), want) {
			return ins[i]
		}
	}
	return nil
}
