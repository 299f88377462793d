package dispatch_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/agentoven/larder/internal/dispatch"
	"github.com/agentoven/larder/pkg/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want models.Command
	}{
		{"u", models.Command{Type: models.CommandUndo}},
		{"UNDO", models.Command{Type: models.CommandUndo}},
		{"help", models.Command{Type: models.CommandHelp}},
		{"show everything", models.Command{Type: models.CommandListAll}},
		{"list all items", models.Command{Type: models.CommandListAll}},
		{"list tags", models.Command{Type: models.CommandListTags}},
		{"show the dictionary", models.Command{Type: models.CommandListDict}},
		{"list n2", models.Command{Type: models.CommandList, Zone: "N2"}},
		{"what's in a1", models.Command{Type: models.CommandList, Zone: "A1"}},
		{"list", models.Command{Type: models.CommandList}},
		{"How many eggs do I have", models.Command{Type: models.CommandCheck, ItemName: "eggs"}},
		{"where is the milk", models.Command{Type: models.CommandCheck, ItemName: "milk"}},
		{"find rice", models.Command{Type: models.CommandCheck, ItemName: "rice"}},
		{"set eggs to 5", models.Command{Type: models.CommandUpdateQty, ItemName: "eggs", Quantity: 5}},
		{"I have 3 milk", models.Command{Type: models.CommandUpdateQty, ItemName: "milk", Quantity: 3}},
		{"move the rice to b2", models.Command{Type: models.CommandMove, ItemName: "rice", Zone: "B2"}},
		{"move rice from a1 to b2", models.Command{Type: models.CommandMove, ItemName: "rice", FromZone: "A1", Zone: "B2"}},
		{"Remove eggs from A2", models.Command{Type: models.CommandRemove, ItemName: "eggs", Zone: "A2"}},
		{"take out bread from b1", models.Command{Type: models.CommandRemove, ItemName: "bread", Zone: "B1"}},
		{"Finished the Dumpling Sauce", models.Command{Type: models.CommandRemove, ItemName: "Dumpling Sauce"}},
		{"used up the milk", models.Command{Type: models.CommandRemove, ItemName: "milk"}},
		{"Bought 5 Bananas in N2", models.Command{Type: models.CommandAdd, ItemName: "Bananas", Quantity: 5, Zone: "N2"}},
		{"I put the rice in a1", models.Command{Type: models.CommandAdd, ItemName: "rice", Quantity: 1, Zone: "A1"}},
		{"put the rice in B1", models.Command{Type: models.CommandAdd, ItemName: "rice", Quantity: 1, Zone: "B1"}},
		{"add 2 soy sauce to d2", models.Command{Type: models.CommandAdd, ItemName: "soy sauce", Quantity: 2, Zone: "D2"}},
		{"  list b1  ", models.Command{Type: models.CommandList, Zone: "B1"}},
		{"what should I cook tonight", models.Command{Type: models.CommandUnknown}},
		{"", models.Command{Type: models.CommandUnknown}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := dispatch.Parse(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}
