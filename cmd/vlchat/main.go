// vlchat is an interactive terminal front-end for the showcase server.
// The first submission opens a new exchange; subsequent lines continue
// it as follow-ups until :new or :edit returns to fresh composition.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"vlshowcase/internal/client"
	"vlshowcase/internal/controller"
	"vlshowcase/internal/imageproc"
	"vlshowcase/internal/models"
	"vlshowcase/internal/session"
)

var (
	serverURL string
	imagePath string
	imageURL  string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "vlchat [prompt]",
	Short: "Chat with the vision-language showcase server",
	Long: `vlchat submits prompts (optionally with an image) to a running
showcase server and keeps a local multi-turn session history.

Plain input continues the selected exchange as a follow-up; commands
start with a colon:

  :history            list past exchanges
  :select <n>         select exchange n from the history list
  :new                deselect and compose a fresh prompt
  :edit <n>           copy exchange n back into the composer
  :image <path|uri>   attach a local image file or data URI
  :image-url <url>    attach a remote image by URL
  :send               submit the composer contents (after :edit)
  :retry              resubmit the last prompt after a failure
  :quit               exit`,
	Args: cobra.ArbitraryArgs,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8090", "Showcase server base URL")
	rootCmd.Flags().StringVar(&imagePath, "image", "", "Path to a local image to attach to the first prompt")
	rootCmd.Flags().StringVar(&imageURL, "image-url", "", "Remote image URL to attach to the first prompt")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var (
	promptColor    = color.New(color.FgGreen, color.Bold).SprintFunc()
	assistantColor = color.New(color.FgCyan, color.Bold).SprintFunc()
	dimColor       = color.New(color.Faint).SprintFunc()
	errColor       = color.New(color.FgRed).SprintFunc()
)

func run(cmd *cobra.Command, args []string) error {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

	store := session.NewStore()
	ctrl := controller.New(client.New(serverURL), store)
	defer ctrl.Close()

	if imagePath != "" && imageURL != "" {
		return errors.New("--image and --image-url are mutually exclusive")
	}
	if imagePath != "" {
		input, err := loadImageInput(imagePath)
		if err != nil {
			return err
		}
		ctrl.SetImage(input)
	}
	if imageURL != "" {
		ctrl.SetImage(controller.NewURLImage(imageURL))
	}

	if initial := strings.TrimSpace(strings.Join(args, " ")); initial != "" {
		submitNew(cmd, ctrl, initial)
	} else {
		fmt.Println(dimColor("Type a prompt, or :help for commands."))
	}

	scanner := bufio.NewScanner(os.Stdin)
	// The limit is in characters; allow for 4-byte runes plus slack.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*controller.MaxPromptLength+1024)
	for {
		fmt.Print(promptColor("you> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			if quit := handleCommand(cmd, ctrl, line); quit {
				break
			}
			continue
		}
		if store.SelectedID() != "" {
			submitFollowUp(cmd, ctrl, line)
		} else {
			submitNew(cmd, ctrl, line)
		}
	}
	return scanner.Err()
}

func handleCommand(cmd *cobra.Command, ctrl *controller.Controller, line string) (quit bool) {
	fields := strings.Fields(line)
	name, rest := fields[0], fields[1:]
	switch name {
	case ":quit", ":q", ":exit":
		return true
	case ":help", ":h":
		fmt.Println(cmd.Long)
	case ":history":
		printHistory(ctrl)
	case ":new":
		ctrl.Store().Select("")
		fmt.Println(dimColor("Composing a new prompt."))
	case ":select":
		if ex, ok := exchangeByIndex(ctrl, rest); ok {
			ctrl.Store().Select(ex.ID)
			fmt.Println(dimColor("Selected: " + truncate(ex.Prompt, 60)))
			fmt.Println(assistantColor("assistant> ") + ex.Response)
		}
	case ":edit":
		if ex, ok := exchangeByIndex(ctrl, rest); ok {
			if err := ctrl.Edit(ex.ID); err != nil {
				fmt.Println(errColor(err.Error()))
				break
			}
			note := "no image carried over"
			if ctrl.Image() != nil {
				note = "image URL carried over"
			}
			fmt.Printf("%s %s (%s)\n", dimColor("Editing:"), truncate(ctrl.Prompt(), 60), note)
			fmt.Println(dimColor("Type a revised prompt, or :send to resubmit it as-is."))
		}
	case ":image":
		if len(rest) != 1 {
			fmt.Println(errColor("usage: :image <path-or-data-uri>"))
			break
		}
		input, err := loadImageInput(rest[0])
		if err != nil {
			fmt.Println(errColor(err.Error()))
			break
		}
		ctrl.SetImage(input)
		fmt.Println(dimColor("Image attached."))
	case ":image-url":
		if len(rest) != 1 {
			fmt.Println(errColor("usage: :image-url <url>"))
			break
		}
		ctrl.SetImage(controller.NewURLImage(rest[0]))
		fmt.Println(dimColor("Image URL attached."))
	case ":send":
		if ctrl.Prompt() == "" {
			fmt.Println(errColor("nothing to send; type a prompt first"))
			break
		}
		submitNew(cmd, ctrl, ctrl.Prompt())
	case ":retry":
		if err := ctrl.Retry(cmd.Context()); err != nil {
			var vErr *controller.ValidationError
			if errors.As(err, &vErr) {
				for _, msg := range vErr.Messages {
					fmt.Println(errColor(msg))
				}
				break
			}
			fmt.Println(errColor(err.Error()))
			break
		}
		printResponse(ctrl)
	default:
		fmt.Println(errColor("unknown command " + name))
	}
	return false
}

func submitNew(cmd *cobra.Command, ctrl *controller.Controller, prompt string) {
	ctrl.SetPrompt(prompt)
	if err := ctrl.Submit(cmd.Context()); err != nil {
		var vErr *controller.ValidationError
		if errors.As(err, &vErr) {
			for _, msg := range vErr.Messages {
				fmt.Println(errColor(msg))
			}
			return
		}
		fmt.Println(errColor(err.Error()))
		fmt.Println(dimColor("Use :retry to try again."))
		return
	}
	printResponse(ctrl)
	// A successful submission consumes the attached image.
	ctrl.SetImage(nil)
}

func submitFollowUp(cmd *cobra.Command, ctrl *controller.Controller, question string) {
	if err := ctrl.SubmitFollowUp(cmd.Context(), question); err != nil {
		fmt.Println(errColor(err.Error()))
		return
	}
	printResponse(ctrl)
}

func printResponse(ctrl *controller.Controller) {
	resp := ctrl.Response()
	if resp == nil {
		return
	}
	fmt.Println(assistantColor("assistant> ") + resp.Content)
	fmt.Println(dimColor(fmt.Sprintf("tokens: %d prompt + %d completion = %d total",
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)))
}

func printHistory(ctrl *controller.Controller) {
	exchanges := ctrl.Store().Exchanges()
	if len(exchanges) == 0 {
		fmt.Println(dimColor("No exchanges yet."))
		return
	}
	selected := ctrl.Store().SelectedID()
	for i, ex := range exchanges {
		marker := " "
		if ex.ID == selected {
			marker = "*"
		}
		turns := len(ex.ConversationHistory)
		fmt.Printf("%s %2d. %s %s\n", marker, i+1, truncate(ex.Prompt, 60),
			dimColor(fmt.Sprintf("(%d turns)", turns)))
	}
}

func exchangeByIndex(ctrl *controller.Controller, args []string) (*models.Exchange, bool) {
	exchanges := ctrl.Store().Exchanges()
	if len(args) != 1 {
		fmt.Println(errColor("usage: provide an exchange number from :history"))
		return nil, false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(exchanges) {
		fmt.Println(errColor("no such exchange; see :history"))
		return nil, false
	}
	return exchanges[n-1], true
}

// loadImageInput accepts either a filesystem path or an already-encoded
// data URI (validated before use).
func loadImageInput(arg string) (*controller.ImageInput, error) {
	if strings.HasPrefix(arg, "data:") {
		if _, _, err := imageproc.DecodeDataURI(arg); err != nil {
			return nil, err
		}
		return &controller.ImageInput{Kind: controller.ImageFile, Data: arg}, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", arg, err)
	}
	return controller.NewFileImage(data)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
