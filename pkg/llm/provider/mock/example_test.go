package mock_test

import (
	"context"
	"fmt"

	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm"
	"github.com/lwmacct/251215-go-pkg-onesdk/pkg/llm/provider/mock"
)

func Example_basic() {
	client := mock.New(mock.WithResponse("Hello, I am a mock assistant."))
	defer func() { _ = client.Close() }()

	resp, err := client.Generate(context.Background(), "mock-1", []llm.Message{
		llm.NewTextMessage(llm.RoleUser, "Hello!"),
	}, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Println(resp.Content())
	// Output: Hello, I am a mock assistant.
}

func Example_stream() {
	client := mock.New(mock.WithResponse("Hi!"))

	stream, err := client.StreamGenerate(context.Background(), "mock-1", nil, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	for chunk, err := range llm.Chunks(stream) {
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		if chunk.Terminal() {
			fmt.Printf("\n[%s]\n", chunk.FinishReason)
			continue
		}
		fmt.Print(chunk.Delta)
	}
	// Output:
	// Hi!
	// [stop]
}

func Example_useScenario() {
	cfg := &mock.Config{
		DefaultResponse: "Default answer",
		Scenarios: []mock.Scenario{
			{
				Name:  "greeting",
				Turns: []mock.Turn{{User: "hi", Assistant: "Hello!"}},
			},
			{
				Name: "booking",
				Turns: []mock.Turn{
					{User: "book", Assistant: "How many people?"},
					{User: "3", Assistant: "Done!"},
				},
			},
		},
	}
	client := mock.New(mock.WithConfig(cfg))
	ctx := context.Background()

	resp, _ := client.Generate(ctx, "mock-1", nil, nil)
	fmt.Println(resp.Content())

	client.UseScenario("greeting")
	resp, _ = client.Generate(ctx, "mock-1", nil, nil)
	fmt.Println(resp.Content())

	client.UseScenario("booking")
	for range 2 {
		resp, _ = client.Generate(ctx, "mock-1", nil, nil)
		fmt.Println(resp.Content())
	}
	// Output:
	// Default answer
	// Hello!
	// How many people?
	// Done!
}

func Example_registry() {
	reg := llm.NewRegistry().MustRegister(mock.Spec()).Freeze()

	client, err := llm.NewClient(reg, mock.Name, llm.Credentials{}, llm.WithModel("mock-1"))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer func() { _ = client.Close() }()

	_, err = client.CreateImage(context.Background(), &llm.ImageRequest{Prompt: "cat"})
	fmt.Println(llm.KindOf(err))
	fmt.Println(client.Supports(llm.OpGenerate))
	// Output:
	// unsupported_operation
	// true
}
