package service

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestPaginate(t *testing.T) {
	Convey("按轮从后向前分页", t, func() {
		all := sampleMessages(6) // a..f，三轮

		Convey("第一页取最后一轮", func() {
			page, next := Paginate(all, 1, 0)
			So(ids(page), ShouldResemble, []string{"e", "f"})
			So(next, ShouldNotBeNil)
			So(*next, ShouldEqual, 1)
		})

		Convey("游标 1 取中间一轮", func() {
			page, next := Paginate(all, 1, 1)
			So(ids(page), ShouldResemble, []string{"c", "d"})
			So(*next, ShouldEqual, 2)
		})

		Convey("游标 2 取第一轮且没有更多", func() {
			page, next := Paginate(all, 1, 2)
			So(ids(page), ShouldResemble, []string{"a", "b"})
			So(next, ShouldBeNil)
		})

		Convey("轮数超过总数时截断为总数", func() {
			page, next := Paginate(all, 10, 0)
			So(ids(page), ShouldResemble, []string{"a", "b", "c", "d", "e", "f"})
			So(next, ShouldBeNil)
		})

		Convey("轮数小于 1 按 1 处理", func() {
			page, next := Paginate(all, 0, 0)
			So(ids(page), ShouldResemble, []string{"e", "f"})
			So(*next, ShouldEqual, 1)

			page, _ = Paginate(all, -3, 0)
			So(ids(page), ShouldResemble, []string{"e", "f"})
		})

		Convey("负游标按 0 处理", func() {
			page, _ := Paginate(all, 1, -5)
			So(ids(page), ShouldResemble, []string{"e", "f"})
		})

		Convey("游标越过开头返回空页", func() {
			page, next := Paginate(all, 1, 3)
			So(page, ShouldBeEmpty)
			So(next, ShouldBeNil)

			page, next = Paginate(all, 2, 9)
			So(page, ShouldBeEmpty)
			So(next, ShouldBeNil)
		})

		Convey("两轮一页", func() {
			page, next := Paginate(all, 2, 0)
			So(ids(page), ShouldResemble, []string{"c", "d", "e", "f"})
			So(*next, ShouldEqual, 2)

			page, next = Paginate(all, 2, *next)
			So(ids(page), ShouldResemble, []string{"a", "b"})
			So(next, ShouldBeNil)
		})

		Convey("空列表", func() {
			page, next := Paginate(nil, 1, 0)
			So(page, ShouldBeEmpty)
			So(page, ShouldNotBeNil)
			So(next, ShouldBeNil)
		})

		Convey("奇数条消息不越界", func() {
			odd := sampleMessages(5)
			page, next := Paginate(odd, 1, 0)
			So(ids(page), ShouldResemble, []string{"e"})
			So(*next, ShouldEqual, 1)
		})

		Convey("返回的窗口不与输入共享底层数组", func() {
			page, _ := Paginate(all, 1, 0)
			page[0] = nil
			So(all[4], ShouldNotBeNil)
		})
	})
}
