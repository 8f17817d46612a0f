package cdp

import (
	"reflect"
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/dgnsrekt/capturewatch/internal/capture"
)

func TestTabRegistrySeedParentsFirst(t *testing.T) {
	r := NewTabRegistry()
	r.Register("T1", "https://a.test/")

	tree := &page.FrameTree{
		Frame: &cdp.Frame{ID: "top", LoaderID: "L1", URL: "https://a.test/", URLFragment: "#frag"},
		ChildFrames: []*page.FrameTree{
			{Frame: &cdp.Frame{ID: "c1", ParentID: "top", LoaderID: "L2", URL: "https://a.test/1"}},
			{
				Frame:       &cdp.Frame{ID: "c2", ParentID: "top", LoaderID: "L3", URL: "https://a.test/2"},
				ChildFrames: []*page.FrameTree{{Frame: &cdp.Frame{ID: "g1", ParentID: "c2", LoaderID: "L4", URL: "https://a.test/3"}}},
			},
		},
	}
	events := r.Seed("T1", tree)

	var ids []capture.FrameID
	for _, ev := range events {
		ids = append(ids, ev.FrameID)
	}
	if want := []capture.FrameID{"top", "c1", "c2", "g1"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("seed order = %v; want %v", ids, want)
	}
	if got, want := events[0].URL, "https://a.test/#frag"; got != want {
		t.Fatalf("top URL = %q; want %q", got, want)
	}
	if got, want := events[3].ParentID, capture.FrameID("c2"); got != want {
		t.Fatalf("g1 parent = %q; want %q", got, want)
	}

	if got := r.Pending("T1"); len(got) != 0 {
		t.Fatalf("Pending() after Seed = %v; want none", got)
	}
	if got, want := r.Detached("T1", "c2"), []capture.FrameID{"c2", "g1"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Detached() = %v; want %v", got, want)
	}
	if got := r.Detached("T1", "c2"); got != nil {
		t.Fatalf("second Detached() = %v; want nil", got)
	}
}

func TestTabRegistryNavigatedUnannouncedParentHidesAnnouncedChild(t *testing.T) {
	r := NewTabRegistry()
	r.Register("T1", "")

	r.Navigated("T1", &cdp.Frame{ID: "top", LoaderID: "L1"})
	r.Navigated("T1", &cdp.Frame{ID: "sub", ParentID: "top", LoaderID: "L2"})
	if _, ok := r.StoppedLoading("T1", "sub"); !ok {
		t.Fatal("sub not announced")
	}

	hide := r.Navigated("T1", &cdp.Frame{ID: "top", LoaderID: "L3"})
	if want := []capture.FrameID{"sub"}; !reflect.DeepEqual(hide, want) {
		t.Fatalf("Navigated() = %v; want %v", hide, want)
	}
}

func TestTabRegistryRemove(t *testing.T) {
	r := NewTabRegistry()
	r.Register("T1", "")
	if got := r.Count(); got != 1 {
		t.Fatalf("Count() = %d; want 1", got)
	}
	if !r.Remove("T1") || r.Remove("T1") {
		t.Fatal("Remove() should report presence once")
	}
	if got := r.Navigated("T1", &cdp.Frame{ID: "top"}); got != nil {
		t.Fatalf("Navigated() on removed tab = %v", got)
	}
}
